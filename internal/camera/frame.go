package camera

import (
	"time"

	"github.com/pion/rtp"
)

// Frame is one opaque media payload tagged with its track. The session core
// never inspects Data; it only fans it out.
type Frame struct {
	Track    Track
	Data     []byte
	Received time.Time
}

// Packet parses the frame payload as an RTP packet. Downstream muxers that
// repackage camera media into a streaming protocol use this; the session
// core does not.
func (f Frame) Packet() (*rtp.Packet, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(f.Data); err != nil {
		return nil, err
	}
	return pkt, nil
}
