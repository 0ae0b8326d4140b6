package market

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// GetProject returns a copy of project id.
func (m *Manager) GetProject(id uint64) (domain.Project, error) {
	p, err := m.project(id)
	if err != nil {
		return domain.Project{}, err
	}
	return copyProject(p), nil
}

// ProjectCount is the number of projects ever created.
func (m *Manager) ProjectCount() uint64 { return uint64(len(m.projects)) }

// ListProjects returns up to limit projects starting at offset.
func (m *Manager) ListProjects(offset, limit int) []domain.Project {
	if offset >= len(m.projects) {
		return []domain.Project{}
	}
	end := len(m.projects)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.Project, 0, end-offset)
	for _, p := range m.projects[offset:end] {
		out = append(out, copyProject(p))
	}
	return out
}

// GetTicket returns ticket id with its current owner. A burned ticket is
// returned with the zero owner.
func (m *Manager) GetTicket(id uint64) (domain.Ticket, error) {
	if id >= uint64(len(m.stakes)) {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	s := m.stakes[id]
	owner, _ := m.registry.OwnerOf(id)
	return domain.Ticket{
		ID:        id,
		ProjectID: s.ProjectID,
		OptionID:  s.OptionID,
		Amount:    s.Amount.Clone(),
		Owner:     owner,
		Claimed:   s.Claimed,
	}, nil
}

// UserTickets returns the tickets account currently owns, by ascending id.
func (m *Manager) UserTickets(account common.Address) []domain.Ticket {
	ids := m.registry.TicketsOf(account)
	out := make([]domain.Ticket, 0, len(ids))
	for _, id := range ids {
		if t, err := m.GetTicket(id); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// OptionTickets returns the ids of every ticket bought on one option, in
// purchase order.
func (m *Manager) OptionTickets(projectID, optionID uint64) ([]uint64, error) {
	p, err := m.project(projectID)
	if err != nil {
		return nil, err
	}
	if optionID >= uint64(len(p.Options)) {
		return nil, domain.ErrInvalidOption
	}
	ids := slices.Clone(m.optionTickets[optionKey{projectID, optionID}])
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func copyProject(p *domain.Project) domain.Project {
	c := *p
	c.Options = slices.Clone(p.Options)
	c.TotalPool = p.TotalPool.Clone()
	c.Seed = p.Seed.Clone()
	c.OptionPools = make([]*uint256.Int, len(p.OptionPools))
	for i, v := range p.OptionPools {
		c.OptionPools[i] = v.Clone()
	}
	if p.WinningOption != nil {
		w := *p.WinningOption
		c.WinningOption = &w
	}
	return c
}
