package camera

import (
	"context"
	"testing"

	"github.com/pion/rtp"
	"github.com/smazurov/camlink/internal/config"
)

func TestTrackRoundTrip(t *testing.T) {
	for _, track := range Tracks {
		got, err := ParseTrack(track.String())
		if err != nil {
			t.Errorf("ParseTrack(%q) error: %v", track.String(), err)
			continue
		}
		if got != track {
			t.Errorf("ParseTrack(%q) = %v, want %v", track.String(), got, track)
		}
	}

	if _, err := ParseTrack("thermal"); err == nil {
		t.Error("ParseTrack accepted unknown track name")
	}
}

func TestParseIRMode(t *testing.T) {
	tests := []struct {
		in      string
		want    IRMode
		wantErr bool
	}{
		{in: "on", want: IROn},
		{in: "off", want: IROff},
		{in: "auto", want: IRAuto},
		{in: "disco", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseIRMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIRMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseIRMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFramePacket(t *testing.T) {
	src := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1234,
			Timestamp:      90000,
			SSRC:           0xDEADBEEF,
		},
		Payload: []byte{0x01, 0x02, 0x03},
	}
	data, err := src.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	frame := Frame{Track: TrackMain, Data: data}
	pkt, err := frame.Packet()
	if err != nil {
		t.Fatalf("Packet() error: %v", err)
	}
	if pkt.SequenceNumber != 1234 || pkt.SSRC != 0xDEADBEEF {
		t.Errorf("Packet() header = %+v", pkt.Header)
	}

	bad := Frame{Track: TrackMain, Data: []byte{0x00}}
	if _, err := bad.Packet(); err == nil {
		t.Error("Packet() accepted truncated payload")
	}
}

func TestDialDispatchesOnScheme(t *testing.T) {
	var dialed config.Camera
	Register("testscheme", func(_ context.Context, cfg config.Camera) (Conn, error) {
		dialed = cfg
		return nil, nil
	})

	cfg := config.Camera{Name: "cam", Address: "testscheme://host:1"}
	if _, err := Dial(context.Background(), cfg); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	if dialed.Name != "cam" {
		t.Errorf("registered dialer saw config %+v", dialed)
	}

	if _, err := Dial(context.Background(), config.Camera{Address: "nosuch://host:1"}); err == nil {
		t.Error("Dial() with unregistered scheme returned nil error")
	}
}
