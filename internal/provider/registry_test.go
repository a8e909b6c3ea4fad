package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentforge-ai-api/internal/domain/entity"
)

func newTestRegistry(t *testing.T, clients map[entity.ProviderName]*stubClient) *Registry {
	t.Helper()
	return NewRegistry(&fakeSettingsRepo{}, plainCipher{}, &stubFactory{clients: clients})
}

func TestRegisterDropsStaleSpendWindows(t *testing.T) {
	// 历史窗口的累计花费不得计入当前窗口：
	// 否则重启后终身花费会永久触发预算禁用
	s := setting(entity.ProviderOpenAI, "gpt-4o")
	s.DailyLimitUSD = 10
	s.MonthlyLimitUSD = 100
	s.SpentDayUSD = 12
	s.SpendDayKey = entity.DaySpendKey(time.Now().AddDate(0, 0, -1))
	s.SpentMonthUSD = 120
	s.SpendMonthKey = entity.MonthSpendKey(time.Now().AddDate(0, -1, 0))

	registry := newTestRegistry(t, map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: {name: entity.ProviderOpenAI},
	})
	require.NoError(t, registry.Register(s))

	day, month := registry.Spend(entity.ProviderOpenAI)
	assert.Zero(t, day)
	assert.Zero(t, month)
	assert.NoError(t, registry.CheckProviderAvailability(entity.ProviderOpenAI))
}

func TestRegisterKeepsCurrentWindowSpend(t *testing.T) {
	now := time.Now()
	s := setting(entity.ProviderOpenAI, "gpt-4o")
	s.DailyLimitUSD = 10
	s.SpentDayUSD = 12
	s.SpendDayKey = entity.DaySpendKey(now)
	s.SpentMonthUSD = 12
	s.SpendMonthKey = entity.MonthSpendKey(now)

	registry := newTestRegistry(t, map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: {name: entity.ProviderOpenAI},
	})
	require.NoError(t, registry.Register(s))

	day, month := registry.Spend(entity.ProviderOpenAI)
	assert.InDelta(t, 12, day, 1e-9)
	assert.InDelta(t, 12, month, 1e-9)

	err := registry.CheckProviderAvailability(entity.ProviderOpenAI)
	require.Error(t, err)
	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindQuotaExceeded, perr.Kind)
}
