package status

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakePub struct {
	mu   sync.Mutex
	msgs map[string][]byte
}

func (f *fakePub) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !retained {
		return nil
	}
	f.msgs[topic] = payload
	return nil
}

func (f *fakePub) get(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.msgs[topic]
	return b, ok
}

func TestMQTTReporter_PublishesCamerasAndCollector(t *testing.T) {
	pub := &fakePub{msgs: map[string][]byte{}}
	board := NewBoard()
	rep := NewMQTTReporter(pub, board, "cam-recorder/", t.TempDir(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rep.Run(ctx)
		close(done)
	}()

	board.Report(Update{CameraID: "7", Name: "Gate", State: "recording", Text: "Recording to g.mp4", FilePath: "/rec/g.mp4"})

	deadline := time.Now().Add(2 * time.Second)
	var raw []byte
	for time.Now().Before(deadline) {
		if b, ok := pub.get("cam-recorder/cameras/7/status"); ok {
			raw = b
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if raw == nil {
		t.Fatal("camera status not published on change")
	}
	var cam map[string]interface{}
	if err := json.Unmarshal(raw, &cam); err != nil {
		t.Fatal(err)
	}
	if cam["state"] != "recording" || cam["file_path"] != "/rec/g.mp4" {
		t.Errorf("camera payload = %v", cam)
	}

	cancel()
	<-done

	raw, ok := pub.get(CollectorTopic("cam-recorder"))
	if !ok {
		t.Fatal("collector status not published")
	}
	var col map[string]interface{}
	if err := json.Unmarshal(raw, &col); err != nil {
		t.Fatal(err)
	}
	if col["status"] != "stopping" || col["collector"] != "cam-recorder" {
		t.Errorf("collector payload = %v", col)
	}
}

func TestOfflinePayload(t *testing.T) {
	var m map[string]string
	if err := json.Unmarshal(OfflinePayload(), &m); err != nil || m["status"] != "offline" {
		t.Errorf("offline payload = %v (%v)", m, err)
	}
}
