package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// plainWriter converts zerolog JSON lines into fixed-width text for humans
// tailing the log file:
//
//	2026-08-22 10:15:42.123 INF controller     stopping service name=worker
//
// Lines that are not valid JSON pass through untouched.
type plainWriter struct {
	w io.Writer
}

const componentWidth = 14

var levelTags = map[string]string{
	"trace": "TRC",
	"debug": "DBG",
	"info":  "INF",
	"warn":  "WRN",
	"error": "ERR",
	"fatal": "FTL",
	"panic": "PNC",
}

func (pw plainWriter) Write(p []byte) (int, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		return pw.w.Write(p)
	}

	ts := popString(fields, "time")
	level := popString(fields, "level")
	component := popString(fields, "component")
	message := popString(fields, "message")

	if t, err := time.Parse(timeLayout, ts); err == nil {
		ts = t.Format("2006-01-02 15:04:05.000")
	}

	tag, ok := levelTags[level]
	if !ok {
		tag = "???"
	}

	if len(component) > componentWidth {
		component = component[:componentWidth]
	}

	line := fmt.Sprintf("%s %s %-*s %s", ts, tag, componentWidth, component, message)
	if extra := flatten(fields); extra != "" {
		line += " " + extra
	}

	if _, err := io.WriteString(pw.w, line+"\n"); err != nil {
		return 0, err
	}
	// zerolog expects the consumed length back, not the formatted length.
	return len(p), nil
}

func popString(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	delete(fields, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// flatten renders leftover fields as sorted key=value pairs.
func flatten(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		s := fmt.Sprintf("%v", fields[k])
		if strings.ContainsAny(s, " \t\"") {
			s = fmt.Sprintf("%q", s)
		}
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, " ")
}
