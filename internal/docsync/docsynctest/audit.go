package docsynctest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/bizstore/internal/shared"
)

// AuditSpy captures audit entries in memory.
type AuditSpy struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

// Record implements shared.AuditPort.
func (a *AuditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

// Logs returns a copy of the captured entries.
func (a *AuditSpy) Logs() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.logs...)
}
