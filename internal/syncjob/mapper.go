package syncjob

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gym-retention/platform/internal/member"
	"github.com/gym-retention/platform/internal/shared/types"
	"github.com/gym-retention/platform/internal/syncjob/pacto"
)

const (
	defaultCheckinTime = "12:00"
	unnamedMember      = "Name not provided"
)

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// alunoID returns the upstream member id under either field name
func alunoID(a pacto.Aluno) string {
	return firstNonEmpty(string(a.AlunoID), string(a.ID))
}

// mapStatus treats anything the upstream does not report as active or
// paused as cancelled.
func mapStatus(s string) member.Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ativo", "active":
		return member.StatusActive
	case "pausado", "paused", "trancado":
		return member.StatusPaused
	}
	return member.StatusCancelled
}

// mapMember converts an upstream record into the local member identity.
// Activity aggregates and risk fields are not touched by the sync.
func mapMember(a pacto.Aluno, matricula string, today types.Date) (*member.Member, error) {
	id := alunoID(a)
	if id == "" {
		return nil, fmt.Errorf("member record without id")
	}

	enrolled := today
	if raw := firstNonEmpty(a.DataMatricula, a.EnrollmentDate); raw != "" {
		d, err := types.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", id, err)
		}
		enrolled = d
	}

	m := &member.Member{
		PactoMemberID:  matricula + "_" + id,
		PactoMatricula: matricula,
		PactoAlunoID:   id,
		PactoFichaID:   firstNonEmpty(string(a.FichaID), string(a.FichaIDSnake), "F"+id),
		Name:           firstNonEmpty(a.Nome, a.Name, unnamedMember),
		Email:          strings.TrimSpace(a.Email),
		Phone:          firstNonEmpty(a.Telefone, a.Phone),
		EnrollmentDate: enrolled,
		PlanValue:      decimal.Zero,
		Status:         mapStatus(a.Status),
	}

	if a.Plano != nil {
		m.PlanName = strings.TrimSpace(a.Plano.Nome)
		if a.Plano.Valor != nil {
			m.PlanValue = *a.Plano.Valor
		}
	}
	if m.PlanName == "" {
		m.PlanName = strings.TrimSpace(a.PlanName)
	}
	if m.PlanValue.IsZero() && a.PlanValue != nil {
		m.PlanValue = *a.PlanValue
	}
	if m.PlanValue.IsNegative() {
		return nil, fmt.Errorf("member %s: negative plan value %s", id, m.PlanValue)
	}

	return m, nil
}

// mapCheckin converts an upstream attendance record. Records without a class
// id get one derived from the date and time so re-syncs stay idempotent.
func mapCheckin(c pacto.Checkin, m *member.Member) (*member.Checkin, error) {
	rawDate := firstNonEmpty(c.Data, c.Date)
	if rawDate == "" {
		return nil, fmt.Errorf("checkin without date")
	}
	date, err := types.ParseDate(rawDate)
	if err != nil {
		return nil, err
	}

	at := firstNonEmpty(c.Hora, c.Time, defaultCheckinTime)
	aulaID := firstNonEmpty(string(c.AulaID), string(c.AulaIDAlt))
	if aulaID == "" {
		aulaID = fmt.Sprintf("AULA_%s_%s_%s", m.PactoAlunoID, date, at)
	}

	confirmed := true
	if c.Confirmado != nil {
		confirmed = *c.Confirmado
	}

	return &member.Checkin{
		MemberID:    m.ID,
		PactoAulaID: aulaID,
		Date:        date,
		Time:        at,
		Activity:    firstNonEmpty(c.Atividade, c.Activity),
		Confirmed:   confirmed,
	}, nil
}
