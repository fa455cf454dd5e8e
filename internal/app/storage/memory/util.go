package memory

import "time"

func nowPtr() *time.Time {
	t := time.Now().UTC()
	return &t
}
