package provider

import (
	"context"
	"time"

	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
	"github.com/theimaginaryfoundation/tale-studio/tale/metrics"
)

// Instrumented records request counts, latency and debug logs around a Completer.
type Instrumented struct {
	Next Completer
}

func (i Instrumented) Complete(ctx context.Context, req Request) (string, error) {
	backend := BackendOf(req.Template)
	start := time.Now()
	out, err := i.Next.Complete(ctx, req)

	metrics.CompletionDuration.WithLabelValues(backend, req.Model).Observe(time.Since(start).Seconds())
	metrics.CompletionRequestsTotal.WithLabelValues(backend, req.Model, metrics.StatusLabel(err)).Inc()
	logger.FromContext(ctx).Debug("completion",
		"backend", backend,
		"model", req.Model,
		"prompt_chars", len(req.Prompt),
		"output_chars", len(out),
		"elapsed", time.Since(start),
		"error", err,
	)
	return out, err
}
