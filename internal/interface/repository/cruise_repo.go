package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCruiseRepository implements the CruiseRepository interface
type GormCruiseRepository struct {
	db *gorm.DB
}

// NewGormCruiseRepository creates a new GORM cruise repository
func NewGormCruiseRepository(db *gorm.DB) repository.CruiseRepository {
	return &GormCruiseRepository{
		db: db,
	}
}

// GORM models for database mapping. DDL lives with the schema migrations,
// outside this service.

type CruiseLines struct {
	ID        int    `gorm:"primaryKey;column:id"`
	Name      string `gorm:"column:name"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CruiseLines) TableName() string { return "cruise_lines" }

type Ships struct {
	ID        int    `gorm:"primaryKey;column:id"`
	LineID    int    `gorm:"column:cruise_line_id"`
	Name      string `gorm:"column:name"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Ships) TableName() string { return "ships" }

type Ports struct {
	ID        int    `gorm:"primaryKey;column:id"`
	Name      string `gorm:"column:name"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Ports) TableName() string { return "ports" }

type Regions struct {
	ID        int    `gorm:"primaryKey;column:id"`
	Name      string `gorm:"column:name"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Regions) TableName() string { return "regions" }

type Cruises struct {
	SailingCode      string    `gorm:"primaryKey;column:sailing_code"`
	LogicalCruiseID  string    `gorm:"column:logical_cruise_id;index"`
	LineID           int       `gorm:"column:cruise_line_id"`
	ShipID           int       `gorm:"column:ship_id"`
	Name             string    `gorm:"column:name"`
	VoyageCode       string    `gorm:"column:voyage_code"`
	SailDate         time.Time `gorm:"column:sail_date"`
	Nights           int       `gorm:"column:nights"`
	EmbarkPortID     *int      `gorm:"column:embark_port_id"`
	DisembarkPortID  *int      `gorm:"column:disembark_port_id"`
	RegionIDs        string    `gorm:"column:region_ids"`
	Currency         string    `gorm:"column:currency"`
	FilePath         string    `gorm:"column:file_path"`
	NeedsPriceUpdate bool      `gorm:"column:needs_price_update;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Cruises) TableName() string { return "cruises" }

type Itineraries struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SailingCode string `gorm:"column:sailing_code;index"`
	Day         int    `gorm:"column:day"`
	PortID      *int   `gorm:"column:port_id"`
	ArriveTime  string `gorm:"column:arrive_time"`
	DepartTime  string `gorm:"column:depart_time"`
	SeaDay      bool   `gorm:"column:sea_day"`
}

func (Itineraries) TableName() string { return "itineraries" }

type CheapestPricing struct {
	SailingCode      string   `gorm:"primaryKey;column:sailing_code"`
	Currency         string   `gorm:"column:currency"`
	Interior         *float64 `gorm:"column:interior"`
	Oceanview        *float64 `gorm:"column:oceanview"`
	Balcony          *float64 `gorm:"column:balcony"`
	Suite            *float64 `gorm:"column:suite"`
	Cheapest         *float64 `gorm:"column:cheapest"`
	CheapestCategory *string  `gorm:"column:cheapest_category"`
	UpdatedAt        time.Time
}

func (CheapestPricing) TableName() string { return "cheapest_pricing" }

// cruiseColumns are overwritten on every sync. created_at and the webhook's
// needs_price_update flag stay untouched so a re-flag during processing is
// never lost.
var cruiseColumns = []string{
	"logical_cruise_id", "cruise_line_id", "ship_id", "name", "voyage_code",
	"sail_date", "nights", "embark_port_id", "disembark_port_id",
	"region_ids", "currency", "file_path", "updated_at",
}

// UpsertSailing writes one document's entities in a single transaction:
// prerequisite reference rows, full-overwrite cruise row, replace-set
// itinerary, pricing summary. Partial failure rolls back the document.
func (r *GormCruiseRepository) UpsertSailing(ctx context.Context, sailing *entity.Sailing, pricing *entity.CanonicalPricing, itinerary []entity.ItineraryDay) error {
	if sailing == nil || sailing.SailingCode == "" {
		return errors.New("sailing without sailing code")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensurePrerequisites(tx, sailing, itinerary); err != nil {
			return err
		}
		if err := r.upsertCruise(tx, sailing); err != nil {
			return err
		}
		if err := r.replaceItinerary(tx, sailing.SailingCode, itinerary); err != nil {
			return err
		}
		if pricing != nil {
			if err := r.upsertPricing(tx, sailing.SailingCode, pricing); err != nil {
				return err
			}
		}
		return nil
	})
}

// ensurePrerequisites makes every referenced line/ship/port/region row
// exist before the cruise row points at it
func (r *GormCruiseRepository) ensurePrerequisites(tx *gorm.DB, sailing *entity.Sailing, itinerary []entity.ItineraryDay) error {
	if sailing.LineID != 0 {
		name := fallbackName(sailing.LineName, "Line", sailing.LineID)
		if err := r.ensureRow(tx, &CruiseLines{ID: sailing.LineID, Name: name}, sailing.LineID, name); err != nil {
			return fmt.Errorf("cruise line %d: %w", sailing.LineID, err)
		}
	}
	if sailing.ShipID != 0 {
		name := fallbackName(sailing.ShipName, "Ship", sailing.ShipID)
		if err := r.ensureRow(tx, &Ships{ID: sailing.ShipID, LineID: sailing.LineID, Name: name}, sailing.ShipID, name); err != nil {
			return fmt.Errorf("ship %d: %w", sailing.ShipID, err)
		}
	}

	portIDs := map[int]bool{}
	if sailing.EmbarkPortID != 0 {
		portIDs[sailing.EmbarkPortID] = true
	}
	if sailing.DisembarkPortID != 0 {
		portIDs[sailing.DisembarkPortID] = true
	}
	for _, day := range itinerary {
		if day.PortID != 0 {
			portIDs[day.PortID] = true
		}
	}
	for id := range portIDs {
		name := sailing.PortNames[id]
		for _, day := range itinerary {
			if name == "" && day.PortID == id && day.PortName != "" {
				name = day.PortName
			}
		}
		name = fallbackName(name, "Port", id)
		if err := r.ensureRow(tx, &Ports{ID: id, Name: name}, id, name); err != nil {
			return fmt.Errorf("port %d: %w", id, err)
		}
	}

	for _, id := range sailing.RegionIDs {
		if id == 0 {
			continue
		}
		name := fallbackName(sailing.RegionNames[id], "Region", id)
		if err := r.ensureRow(tx, &Regions{ID: id, Name: name}, id, name); err != nil {
			return fmt.Errorf("region %d: %w", id, err)
		}
	}
	return nil
}

// ensureRow inserts the reference row if absent. An existing synthetic
// placeholder name upgrades once a human-readable one arrives; a known
// name never downgrades to a placeholder.
func (r *GormCruiseRepository) ensureRow(tx *gorm.DB, model interface{}, id int, name string) error {
	var existing struct {
		Name string
	}
	result := tx.Model(model).Where("id = ?", id).Select("name").Take(&existing)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(model).Error
	}
	if result.Error != nil {
		return result.Error
	}
	if isPlaceholderName(existing.Name) && !isPlaceholderName(name) {
		return tx.Model(model).Where("id = ?", id).Update("name", name).Error
	}
	return nil
}

func (r *GormCruiseRepository) upsertCruise(tx *gorm.DB, sailing *entity.Sailing) error {
	row := Cruises{
		SailingCode:     sailing.SailingCode,
		LogicalCruiseID: sailing.LogicalCruiseID,
		LineID:          sailing.LineID,
		ShipID:          sailing.ShipID,
		Name:            sailing.Name,
		VoyageCode:      sailing.VoyageCode,
		SailDate:        sailing.SailDate,
		Nights:          sailing.Nights,
		EmbarkPortID:    nullableID(sailing.EmbarkPortID),
		DisembarkPortID: nullableID(sailing.DisembarkPortID),
		RegionIDs:       joinIDs(sailing.RegionIDs),
		Currency:        sailing.Currency,
		FilePath:        sailing.FilePath,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sailing_code"}},
		DoUpdates: clause.AssignmentColumns(cruiseColumns),
	}).Create(&row).Error
}

// replaceItinerary deletes and reinserts the day list. The provider sends
// the complete itinerary with every document, so replace-set keeps
// "itinerary matches latest document" trivially true.
func (r *GormCruiseRepository) replaceItinerary(tx *gorm.DB, sailingCode string, itinerary []entity.ItineraryDay) error {
	if err := tx.Where("sailing_code = ?", sailingCode).Delete(&Itineraries{}).Error; err != nil {
		return err
	}
	if len(itinerary) == 0 {
		return nil
	}
	rows := make([]Itineraries, 0, len(itinerary))
	for _, day := range itinerary {
		rows = append(rows, Itineraries{
			SailingCode: sailingCode,
			Day:         day.Day,
			PortID:      nullableID(day.PortID),
			ArriveTime:  day.ArriveTime,
			DepartTime:  day.DepartTime,
			SeaDay:      day.SeaDay,
		})
	}
	return tx.Create(&rows).Error
}

func (r *GormCruiseRepository) upsertPricing(tx *gorm.DB, sailingCode string, pricing *entity.CanonicalPricing) error {
	var category *string
	if pricing.CheapestCategory != nil {
		c := string(*pricing.CheapestCategory)
		category = &c
	}
	row := CheapestPricing{
		SailingCode:      sailingCode,
		Currency:         pricing.Currency,
		Interior:         pricing.Interior,
		Oceanview:        pricing.Oceanview,
		Balcony:          pricing.Balcony,
		Suite:            pricing.Suite,
		Cheapest:         pricing.Cheapest,
		CheapestCategory: category,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sailing_code"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func nullableID(id int) *int {
	if id == 0 {
		return nil
	}
	return &id
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}

// isPlaceholderName reports whether a name is one of the synthetic
// "Line 123" style fallbacks this repository generates
func isPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	for _, prefix := range []string{"Line ", "Ship ", "Port ", "Region "} {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return true
		}
	}
	return false
}

func fallbackName(name, kind string, id int) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fmt.Sprintf("%s %d", kind, id)
}
