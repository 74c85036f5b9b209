// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"log/slog"
	"os"
	"time"
)

// NewJSONHandler returns a Handler that emits one JSON object per log
// line, for consumption by a log aggregator. Used when bqdrift is run
// non-interactively (CI, a scheduled sync) where --json-logs is set.
func NewJSONHandler() slog.Handler {
	return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{ReplaceAttr: replaceAttr, Level: slog.LevelDebug})
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case "time":
		if a.Value.Kind() == slog.KindTime {
			a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
		}
	case "msg":
		a.Key = "message"
	case "level":
		a.Key = "severity"
	}
	return a
}
