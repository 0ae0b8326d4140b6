package market

import (
	"github.com/alanyoungcy/easybet/internal/domain"
)

// State is the serializable content of a Manager. The per-option ticket
// lists are rebuilt from Stakes, whose order is purchase order.
type State struct {
	Projects []domain.Project `json:"projects"`
	Stakes   []Stake          `json:"stakes"`
}

// Export copies the manager content.
func (m *Manager) Export() State {
	s := State{
		Projects: make([]domain.Project, len(m.projects)),
		Stakes:   make([]Stake, len(m.stakes)),
	}
	for i, p := range m.projects {
		s.Projects[i] = copyProject(p)
	}
	for i, st := range m.stakes {
		st.Amount = st.Amount.Clone()
		s.Stakes[i] = st
	}
	return s
}

// Import replaces the manager content with s.
func (m *Manager) Import(s State) {
	m.projects = make([]*domain.Project, len(s.Projects))
	m.stakes = make([]Stake, len(s.Stakes))
	m.optionTickets = make(map[optionKey][]uint64)

	for i := range s.Projects {
		p := copyProject(&s.Projects[i])
		m.projects[i] = &p
	}
	for i, st := range s.Stakes {
		st.Amount = orZero(st.Amount).Clone()
		m.stakes[i] = st
		key := optionKey{st.ProjectID, st.OptionID}
		m.optionTickets[key] = append(m.optionTickets[key], uint64(i))
	}
}
