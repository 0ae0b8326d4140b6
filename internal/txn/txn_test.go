package txn_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/txn"
)

func TestRollbackRunsUndoInReverse(t *testing.T) {
	tx := txn.New(time.Unix(100, 0))
	var order []int
	tx.OnRollback(func() { order = append(order, 1) })
	tx.OnRollback(func() { order = append(order, 2) })
	tx.Emit(domain.FaucetClaimed{})

	tx.Rollback()
	assert.Equal(t, []int{2, 1}, order)
	assert.Empty(t, tx.Events())

	tx.Rollback()
	assert.Equal(t, []int{2, 1}, order, "second rollback must not rerun undos")
}

func TestCommitKeepsEventsAndDisablesRollback(t *testing.T) {
	tx := txn.New(time.Unix(100, 0))
	ran := false
	tx.OnRollback(func() { ran = true })
	tx.Emit(domain.FaucetClaimed{})

	tx.Commit()
	tx.Rollback()
	assert.False(t, ran)
	require.Len(t, tx.Events(), 1)
	assert.Equal(t, domain.EventFaucetClaimed, tx.Events()[0].Kind())
	assert.Equal(t, time.Unix(100, 0), tx.Now())
}
