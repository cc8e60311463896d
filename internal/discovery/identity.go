package discovery

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"time"

	"github.com/trueLoving/Stationuli/internal/models"
)

const defaultDeviceName = "stationuli-device"

// Identity is how this process presents itself to peers. The ID is fixed for
// the lifetime of the value.
type Identity struct {
	ID   string
	Name string
	Type models.DeviceType
}

func NewIdentity(typ models.DeviceType) Identity {
	host, err := os.Hostname()
	if err != nil {
		host = ""
	}

	name := host
	if name == "" {
		name = defaultDeviceName
	}

	return Identity{
		ID:   GenDeviceID(host, time.Now()),
		Name: name,
		Type: typ,
	}
}

// GenDeviceID hashes the host name together with a start time.
func GenDeviceID(host string, start time.Time) string {
	if host == "" {
		host = "unknown"
	}
	h := fnv.New64a()
	h.Write([]byte(host))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(start.UnixNano(), 10)))
	return fmt.Sprintf("device-%x", h.Sum64())
}
