package narrator

import (
	"context"
	"strings"
)

// Echo is an offline ChatClient that hands back the source text between the
// prompt markers untouched. It backs dry runs of the pipeline.
type Echo struct{}

func (Echo) Name() string      { return "echo" }
func (Echo) Configured() error { return nil }

func (Echo) Complete(_ context.Context, req Request) (string, error) {
	const openMark, closeMark = "--- TEXT TO TRANSFORM ---\n", "\n--- END TEXT ---"
	start := strings.Index(req.User, openMark)
	end := strings.LastIndex(req.User, closeMark)
	if start < 0 || end < start+len(openMark) {
		return req.User, nil
	}
	return req.User[start+len(openMark) : end], nil
}
