package stream

import "fmt"

// State 连接状态
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Streaming
	Backoff
	// Failed 只有配置了最大重试次数才会进入
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Subscribed:
		return "Subscribed"
	case Streaming:
		return "Streaming"
	case Backoff:
		return "Backoff"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
