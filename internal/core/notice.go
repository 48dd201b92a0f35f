package core

import "github.com/dkeye/Cast/internal/domain"

const NoticeType = "matchmaker-notice"

const (
	DetailWaiting = "Waiting for available streamer"
	DetailDropped = "Streamer dropped"
)

// Notice is the status message sent to the player leg on every queued/matched
// transition. Detail is a string while waiting and a StreamerDescriptor once
// matched.
type Notice struct {
	Type    string `json:"type"`
	Queued  bool   `json:"queued"`
	Matched bool   `json:"matched"`
	Detail  any    `json:"detail"`
}

// StreamerDescriptor identifies the streamer a session was matched to.
type StreamerDescriptor struct {
	ID      domain.StreamerID `json:"id"`
	Address string            `json:"address"`
	Port    int               `json:"port"`
}

func waitingNotice() Notice {
	return Notice{Type: NoticeType, Queued: true, Detail: DetailWaiting}
}

func matchedNotice(d StreamerDescriptor) Notice {
	return Notice{Type: NoticeType, Matched: true, Detail: d}
}

func droppedNotice() Notice {
	return Notice{Type: NoticeType, Queued: true, Detail: DetailDropped}
}
