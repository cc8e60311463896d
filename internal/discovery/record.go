package discovery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/trueLoving/Stationuli/internal/models"
)

const (
	recordMagic  = "STATIONULI"
	recordAction = "announce"
)

var errBadRecord = errors.New("not an announce record")

// Announcement is the decoded form of STATIONULI:<id>:<name>:<type>:<port>:announce.
type Announcement struct {
	ID   string
	Name string
	Type models.DeviceType
	Port uint16
}

func (a Announcement) Encode() []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s:%d:%s",
		recordMagic, a.ID, a.Name, a.Type, a.Port, recordAction))
}

// ParseAnnouncement decodes a record. The name may itself contain colons, so
// fields are taken from both ends.
func ParseAnnouncement(b []byte) (Announcement, error) {
	parts := strings.Split(strings.TrimSpace(string(b)), ":")
	if len(parts) < 6 || parts[0] != recordMagic || parts[len(parts)-1] != recordAction {
		return Announcement{}, errBadRecord
	}

	id := parts[1]
	if id == "" {
		return Announcement{}, errBadRecord
	}

	port, err := strconv.ParseUint(parts[len(parts)-2], 10, 16)
	if err != nil || port == 0 {
		return Announcement{}, errBadRecord
	}

	return Announcement{
		ID:   id,
		Name: strings.Join(parts[2:len(parts)-3], ":"),
		Type: models.ParseDeviceType(parts[len(parts)-3]),
		Port: uint16(port),
	}, nil
}
