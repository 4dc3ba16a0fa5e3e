package alerts

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylonmolting/agora-oracle/internal/domain"
)

func newManagerFixture(t *testing.T) (*Manager, *Repository, int64) {
	t.Helper()

	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	manager := NewManager(repo, zerolog.Nop())
	agentID := seedAgentAccount(t, db)

	return manager, repo, agentID
}

func validAlert(agentID int64) Alert {
	return Alert{
		AgentID:      agentID,
		AlertType:    TypePriceDrop,
		TargetSkill:  "translation/en-fr",
		NotifyMethod: NotifyWebsocket,
	}
}

func TestManagerCreate_Validation(t *testing.T) {
	manager, _, agentID := newManagerFixture(t)

	tests := []struct {
		name   string
		mutate func(*Alert)
	}{
		{"unknown alert type", func(a *Alert) { a.AlertType = "price_spike" }},
		{"unknown notify method", func(a *Alert) { a.NotifyMethod = "carrier_pigeon" }},
		{"missing target", func(a *Alert) { a.TargetSkill = "" }},
		{"threshold without max price", func(a *Alert) { a.AlertType = TypePriceThreshold }},
		{"webhook without url", func(a *Alert) { a.NotifyMethod = NotifyWebhook }},
		{"email without address", func(a *Alert) { a.NotifyMethod = NotifyEmail }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := validAlert(agentID)
			tt.mutate(&alert)

			_, err := manager.Create(alert)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

func TestManagerCreate_CanonicalizesSkill(t *testing.T) {
	manager, _, agentID := newManagerFixture(t)

	alert := validAlert(agentID)
	alert.TargetSkill = "summarization"

	created, err := manager.Create(alert)
	require.NoError(t, err)
	assert.Equal(t, "summarization/default", created.TargetSkill)
	assert.Equal(t, StatusActive, created.Status)
}

func TestManager_CrossAgentAccessDenied(t *testing.T) {
	manager, _, agentID := newManagerFixture(t)

	created, err := manager.Create(validAlert(agentID))
	require.NoError(t, err)

	otherAgent := agentID + 99

	_, err = manager.Get(otherAgent, created.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = manager.UpdateStatus(otherAgent, created.ID, StatusPaused)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	err = manager.Delete(otherAgent, created.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestManager_UpdateStatus(t *testing.T) {
	manager, _, agentID := newManagerFixture(t)

	created, err := manager.Create(validAlert(agentID))
	require.NoError(t, err)

	updated, err := manager.UpdateStatus(agentID, created.ID, StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, updated.Status)

	_, err = manager.UpdateStatus(agentID, created.ID, "archived")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestManager_DeleteMissingAlert(t *testing.T) {
	manager, _, agentID := newManagerFixture(t)

	err := manager.Delete(agentID, 12345)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestManager_ListMostRecentFirst(t *testing.T) {
	manager, repo, agentID := newManagerFixture(t)

	first, err := manager.Create(validAlert(agentID))
	require.NoError(t, err)
	second, err := manager.Create(validAlert(agentID))
	require.NoError(t, err)

	alerts, err := repo.ListByAgent(agentID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, second.ID, alerts[0].ID)
	assert.Equal(t, first.ID, alerts[1].ID)
}

func TestManager_HistoryLimit(t *testing.T) {
	manager, repo, agentID := newManagerFixture(t)

	created, err := manager.Create(validAlert(agentID))
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		_, err := repo.InsertTrigger(Trigger{
			AlertID:  created.ID,
			OldPrice: 0.02,
			NewPrice: 0.019,
			Skill:    "translation/en-fr",
		})
		require.NoError(t, err)
	}

	history, err := manager.History(agentID, created.ID)
	require.NoError(t, err)
	assert.Len(t, history, 50)
}
