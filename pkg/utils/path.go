package utils

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// PathParts are the components of one archive document path,
// /{year}/{month}/{lineId}/{shipId}/{sailingCode}.json
type PathParts struct {
	Year        int
	Month       int
	LineID      int
	ShipID      int
	SailingCode string
}

// DocumentPath builds the archive path for a sailing document
func DocumentPath(year, month, lineID, shipID int, sailingCode string) string {
	return path.Join(
		strconv.Itoa(year),
		fmt.Sprintf("%02d", month),
		strconv.Itoa(lineID),
		strconv.Itoa(shipID),
		sailingCode+".json",
	)
}

// ParseDocumentPath splits an archive document path into its components
func ParseDocumentPath(p string) (PathParts, error) {
	trimmed := strings.Trim(p, "/")
	segments := strings.Split(trimmed, "/")
	if len(segments) != 5 {
		return PathParts{}, fmt.Errorf("malformed document path %q", p)
	}

	year, err := strconv.Atoi(segments[0])
	if err != nil {
		return PathParts{}, fmt.Errorf("malformed year in path %q", p)
	}
	month, err := strconv.Atoi(segments[1])
	if err != nil {
		return PathParts{}, fmt.Errorf("malformed month in path %q", p)
	}
	lineID, err := strconv.Atoi(segments[2])
	if err != nil {
		return PathParts{}, fmt.Errorf("malformed line id in path %q", p)
	}
	shipID, err := strconv.Atoi(segments[3])
	if err != nil {
		return PathParts{}, fmt.Errorf("malformed ship id in path %q", p)
	}

	code := strings.TrimSuffix(segments[4], ".json")
	if code == "" || code == segments[4] {
		return PathParts{}, fmt.Errorf("malformed document name in path %q", p)
	}

	return PathParts{
		Year:        year,
		Month:       month,
		LineID:      lineID,
		ShipID:      shipID,
		SailingCode: code,
	}, nil
}
