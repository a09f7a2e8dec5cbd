package insights

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/lox/spend-advisor/internal/llm"
)

type generateCall struct {
	history []llm.Message
	parts   []llm.Part
	opts    llm.Options
}

// fakeProvider replies from a script and records every call
type fakeProvider struct {
	mu sync.Mutex

	replies     []string
	generateErr error
	uploadErr   error

	// when gate is set Generate signals entered and waits for gate to close
	gate    chan struct{}
	entered chan struct{}

	uploads   []llm.FileRef
	deletes   []llm.FileRef
	generates []generateCall
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) UploadFile(ctx context.Context, path, mimeType string) (llm.FileRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploadErr != nil {
		return llm.FileRef{}, p.uploadErr
	}
	ref := llm.FileRef{
		Name:        fmt.Sprintf("files/%d", len(p.uploads)+1),
		URI:         "https://files.test/" + filepath.Base(path),
		MIMEType:    mimeType,
		DisplayName: filepath.Base(path),
	}
	p.uploads = append(p.uploads, ref)
	return ref, nil
}

func (p *fakeProvider) DeleteFile(ctx context.Context, ref llm.FileRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes = append(p.deletes, ref)
	return nil
}

func (p *fakeProvider) Generate(ctx context.Context, history []llm.Message, parts []llm.Part, opts llm.Options) (string, error) {
	p.mu.Lock()
	gate, entered := p.gate, p.entered
	p.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.generates = append(p.generates, generateCall{history: history, parts: parts, opts: opts})
	if p.generateErr != nil {
		return "", p.generateErr
	}
	if len(p.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return reply, nil
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	v[0] = 1
	for i, r := range text {
		v[1+(i+int(r))%7] += 1
	}
	return v, nil
}

func (p *fakeProvider) script(replies ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = replies
}
