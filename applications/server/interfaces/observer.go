package interfaces

import "time"

type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes int64, err error)
	RecordParse(duration time.Duration, err error)
	RecordRequest(code int)
}
