package usecase

import (
	"fmt"
	"strconv"
	"time"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/pkg/logger"
	"cruisesync-service/pkg/utils"
)

// SailingMapper builds the sailing and itinerary entities from a parsed
// provider document
type SailingMapper struct {
	logger logger.Logger
}

// NewSailingMapper creates a new sailing mapper
func NewSailingMapper(log logger.Logger) *SailingMapper {
	return &SailingMapper{logger: log}
}

// Map extracts the sailing and its itinerary from the document tree.
// The archive path supplies line/ship/sailing identifiers when the document
// omits them.
func (m *SailingMapper) Map(tree Tree, path string) (*entity.Sailing, []entity.ItineraryDay, error) {
	parts, pathErr := utils.ParseDocumentPath(path)

	sailingCode := utils.TreeString(tree, "codetocruiseid")
	if sailingCode == "" && pathErr == nil {
		sailingCode = parts.SailingCode
	}
	if sailingCode == "" {
		return nil, nil, fmt.Errorf("%w: document carries no sailing code", ErrUnrecoverable)
	}

	lineID := utils.TreeInt(tree, "lineid")
	if lineID == 0 && pathErr == nil {
		lineID = parts.LineID
	}
	shipID := utils.TreeInt(tree, "shipid")
	if shipID == 0 && pathErr == nil {
		shipID = parts.ShipID
	}

	sailing := &entity.Sailing{
		SailingCode:     sailingCode,
		LogicalCruiseID: utils.TreeString(tree, "cruiseid"),
		LineID:          lineID,
		ShipID:          shipID,
		Name:            utils.TreeString(tree, "name"),
		VoyageCode:      utils.TreeString(tree, "voyagecode"),
		SailDate:        m.parseSailDate(tree),
		Nights:          m.parseNights(tree),
		EmbarkPortID:    utils.TreeInt(tree, "startportid"),
		DisembarkPortID: utils.TreeInt(tree, "endportid"),
		RegionIDs:       utils.TreeIntList(tree, "regionids"),
		Currency:        utils.TreeString(tree, "currency"),
		FilePath:        path,
		LineName:        utils.TreeString(utils.TreeMap(tree, "linecontent"), "name"),
		ShipName:        utils.TreeString(utils.TreeMap(tree, "shipcontent"), "name"),
		PortNames:       nameTable(utils.TreeMap(tree, "ports")),
		RegionNames:     nameTable(utils.TreeMap(tree, "regions")),
	}
	if sailing.VoyageCode == "" {
		sailing.VoyageCode = utils.TreeString(tree, "itinerarycode")
	}

	return sailing, m.mapItinerary(tree), nil
}

func (m *SailingMapper) parseSailDate(tree Tree) time.Time {
	for _, key := range []string{"saildate", "startdate"} {
		raw := utils.TreeString(tree, key)
		if raw == "" {
			continue
		}
		for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
		m.logger.Warn("Unparseable sail date", "value", raw)
	}
	return time.Time{}
}

func (m *SailingMapper) parseNights(tree Tree) int {
	if nights := utils.TreeInt(tree, "nights"); nights > 0 {
		return nights
	}
	return utils.TreeInt(tree, "sailnights")
}

// mapItinerary reads the complete day list the provider sends with every
// document. Day entries with no usable day number keep their position order.
func (m *SailingMapper) mapItinerary(tree Tree) []entity.ItineraryDay {
	var days []entity.ItineraryDay
	for i, dayVal := range utils.TreeSlice(tree, "itinerary") {
		day, ok := dayVal.(map[string]interface{})
		if !ok {
			continue
		}
		number := utils.TreeInt(day, "day")
		if number == 0 {
			number = i + 1
		}
		days = append(days, entity.ItineraryDay{
			Day:        number,
			PortID:     utils.TreeInt(day, "portid"),
			PortName:   utils.TreeString(day, "name"),
			ArriveTime: utils.TreeString(day, "arrivetime"),
			DepartTime: utils.TreeString(day, "departtime"),
			SeaDay:     utils.TreeBool(day, "seaday"),
		})
	}
	return days
}

// nameTable converts the provider's {id: name} lookup objects
func nameTable(m map[string]interface{}) map[int]string {
	if len(m) == 0 {
		return nil
	}
	table := map[int]string{}
	for key, val := range m {
		id, err := strconv.Atoi(key)
		name, _ := val.(string)
		if err == nil && id != 0 && name != "" {
			table[id] = name
		}
	}
	if len(table) == 0 {
		return nil
	}
	return table
}
