// Package view turns feed events into dashboard state.
//
// The Controller owns the last record set it received and the selected view
// mode. Every snapshot replaces the record set wholesale and recomputes both
// the aggregation and the monthly history; a mode change only recomputes the
// aggregation. Feed errors never clear data that is already on screen.
package view

import (
	"fmt"
	"time"

	"despesas/internal/core"
	"despesas/internal/feed"
)

// State is the lifecycle state of a dashboard.
type State int

const (
	Loading State = iota
	Empty
	Ready
	// Unavailable means the subscription could not be set up at all.
	Unavailable
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Empty:
		return "empty"
	case Ready:
		return "ready"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	StatusOnline  = "☁ Online (Sincronizado)"
	StatusOffline = "⚠ Offline (Não sincronizado)"
)

// View is an immutable copy of the dashboard state. Records and the derived
// values are shared with the controller and must not be modified.
type View struct {
	State       State
	Mode        core.ViewMode
	Today       core.Date
	Records     []core.Expense
	Aggregation core.Aggregation
	History     core.History
	Offline     bool
	Version     uint64
	UpdatedAt   time.Time
	LastError   *feed.Error
	Message     string
}

// Status is the online/offline indicator text.
func (v View) Status() string {
	if v.Offline {
		return StatusOffline
	}
	return StatusOnline
}

// HasData reports whether there is anything to render.
func (v View) HasData() bool {
	return v.State == Ready || v.State == Empty
}

// Message returns the user-facing text for a feed error. Access and
// missing-store errors need different fixes, so they read differently.
func Message(err *feed.Error) string {
	if err == nil {
		return ""
	}
	switch err.Kind {
	case feed.KindPermissionDenied:
		return "ERRO DE PERMISSÃO: o servidor recusou a conexão. Verifique o API_TOKEN configurado."
	case feed.KindNotFound:
		return "ERRO: Banco de dados não encontrado. Verifique DATA_BACKEND e SQLITE_DB_PATH no servidor."
	}
	detail := "falha desconhecida"
	if err.Err != nil {
		detail = err.Err.Error()
	}
	return "Erro de Conexão: " + detail
}
