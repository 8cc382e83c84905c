package brain

import (
	"context"
	"fmt"
)

// MockAdapter is a deterministic local adapter used for tests and dev
// runs without provider credentials.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Generate(_ context.Context, req Request) (Response, error) {
	if len(req.ImageBytes) > 0 {
		return Response{Text: fmt.Sprintf("I looked at your %s frame (%d bytes).", req.ImageMIME, len(req.ImageBytes))}, nil
	}
	return Response{Text: "Simulated reply: " + req.Prompt}, nil
}
