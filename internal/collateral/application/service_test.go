package application

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/kpstreasury/internal/apperror"
	"github.com/wyfcoding/kpstreasury/internal/collateral/domain"
	"github.com/wyfcoding/kpstreasury/internal/events"
)

// fakeCollateralRepo 内存仓储
type fakeCollateralRepo struct {
	collaterals map[uint64]*domain.Collateral
	nextID      uint64
}

func newFakeCollateralRepo() *fakeCollateralRepo {
	return &fakeCollateralRepo{collaterals: make(map[uint64]*domain.Collateral), nextID: 1}
}

func (r *fakeCollateralRepo) Save(_ context.Context, collateral *domain.Collateral) error {
	if collateral.ID == 0 {
		collateral.ID = r.nextID
		r.nextID++
	}
	copied := *collateral
	r.collaterals[collateral.ID] = &copied
	return nil
}

func (r *fakeCollateralRepo) GetByID(_ context.Context, id uint64) (*domain.Collateral, error) {
	collateral, ok := r.collaterals[id]
	if !ok {
		return nil, nil
	}
	copied := *collateral
	return &copied, nil
}

func (r *fakeCollateralRepo) Delete(_ context.Context, id uint64) error {
	delete(r.collaterals, id)
	return nil
}

func (r *fakeCollateralRepo) List(_ context.Context, _, _ int) ([]*domain.Collateral, int64, error) {
	return nil, 0, nil
}

func (r *fakeCollateralRepo) ListByStatus(_ context.Context, _ domain.CollateralStatus) ([]*domain.Collateral, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) ListByType(_ context.Context, _ domain.CollateralType) ([]*domain.Collateral, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) ListByRating(_ context.Context, _ domain.Rating) ([]*domain.Collateral, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) ListByCurrency(_ context.Context, _ string) ([]*domain.Collateral, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) ListByCounterparty(_ context.Context, _ string) ([]*domain.Collateral, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) ListEligibleByRatings(_ context.Context, ratings []domain.Rating) ([]*domain.Collateral, error) {
	allowed := make(map[domain.Rating]struct{}, len(ratings))
	for _, rating := range ratings {
		allowed[rating] = struct{}{}
	}
	var out []*domain.Collateral
	for _, c := range r.collaterals {
		if _, ok := allowed[c.Rating]; ok && c.Status == domain.CollateralStatusEligible {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeCollateralRepo) ListExpiringBetween(_ context.Context, _, _ time.Time) ([]*domain.Collateral, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) Search(_ context.Context, _ domain.CollateralFilter, _, _ int) ([]*domain.Collateral, int64, error) {
	return nil, 0, nil
}

func (r *fakeCollateralRepo) ListMaturedBefore(_ context.Context, asOf time.Time) ([]*domain.Collateral, error) {
	var out []*domain.Collateral
	for _, c := range r.collaterals {
		if c.Status != domain.CollateralStatusMatured && c.IsMaturedBy(asOf) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeCollateralRepo) SumEligibleValue(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, c := range r.collaterals {
		if c.Status == domain.CollateralStatusEligible {
			total = total.Add(c.EligibleValue)
		}
	}
	return total, nil
}

func (r *fakeCollateralRepo) SummaryByType(_ context.Context) ([]*domain.TypeSummary, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) ConcentrationByRating(_ context.Context) ([]*domain.RatingConcentration, error) {
	return nil, nil
}

func (r *fakeCollateralRepo) ListHighRisk(_ context.Context, threshold decimal.Decimal) ([]*domain.Collateral, error) {
	var out []*domain.Collateral
	for _, c := range r.collaterals {
		if c.Status == domain.CollateralStatusEligible && c.Haircut.GreaterThan(threshold) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeCollateralRepo) SumRiskExposure(_ context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (r *fakeCollateralRepo) AverageHaircutByType(_ context.Context) ([]*domain.HaircutAverage, error) {
	return []*domain.HaircutAverage{}, nil
}

func (r *fakeCollateralRepo) AverageHaircutForType(_ context.Context, collateralType domain.CollateralType) (decimal.Decimal, error) {
	sum, count := decimal.Zero, int64(0)
	for _, c := range r.collaterals {
		if c.CollateralType == collateralType {
			sum = sum.Add(c.Haircut)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero, nil
	}
	return sum.Div(decimal.NewFromInt(count)), nil
}

type fakeTxManager struct{}

func (fakeTxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordingMQ 记录全部发布调用
type recordingMQ struct {
	published []any
}

func (m *recordingMQ) Publish(_ context.Context, _ string, _ string, event any) error {
	m.published = append(m.published, event)
	return nil
}

func (m *recordingMQ) PublishInTx(ctx context.Context, _ any, topic string, key string, event any) error {
	return m.Publish(ctx, topic, key, event)
}

func (m *recordingMQ) eventTypes() []events.EventType {
	types := make([]events.EventType, 0, len(m.published))
	for _, p := range m.published {
		switch ev := p.(type) {
		case events.CollateralEvent:
			types = append(types, ev.EventType)
		case events.NotificationEvent:
			types = append(types, ev.EventType)
		}
	}
	return types
}

func newTestService(t *testing.T) (*CollateralService, *fakeCollateralRepo, *recordingMQ) {
	t.Helper()
	repo := newFakeCollateralRepo()
	mq := &recordingMQ{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewCollateralService(repo, fakeTxManager{}, events.NewPublisher(mq, logger), logger)
	return svc, repo, mq
}

func seedCollateral(t *testing.T, repo *fakeCollateralRepo, rating domain.Rating, haircut float64, maturity time.Time) *domain.Collateral {
	t.Helper()
	market := decimal.NewFromInt(1000000)
	h := decimal.NewFromFloat(haircut)
	collateral := &domain.Collateral{
		CollateralType: domain.CollateralTypeGovernmentBond,
		Description:    "US Treasury Bond 10Y",
		MarketValue:    market,
		Haircut:        h,
		EligibleValue:  domain.ComputeEligibleValue(market, h),
		Currency:       "USD",
		Rating:         rating,
		MaturityDate:   maturity,
		Status:         domain.CollateralStatusEligible,
		Counterparty:   "Goldman Sachs",
		Location:       "New York",
	}
	require.NoError(t, repo.Save(context.Background(), collateral))
	return collateral
}

func TestCreateCollateral(t *testing.T) {
	svc, _, mq := newTestService(t)

	collateral, err := svc.CreateCollateral(context.Background(), CreateCollateralCommand{
		CollateralType: domain.CollateralTypeGovernmentBond,
		Description:    "US Treasury Bond 10Y",
		MarketValue:    decimal.NewFromInt(1000000),
		Haircut:        decimal.NewFromFloat(0.15),
		Currency:       "USD",
		Rating:         domain.RatingAAA,
		MaturityDate:   time.Now().AddDate(1, 0, 0),
		Counterparty:   "Goldman Sachs",
		Location:       "New York",
	}, "alice")
	require.NoError(t, err)
	assert.NotZero(t, collateral.ID)
	assert.True(t, decimal.NewFromInt(850000).Equal(collateral.EligibleValue))
	assert.Equal(t, domain.CollateralStatusEligible, collateral.Status)
	assert.Equal(t, []events.EventType{events.EventCollateralCreated}, mq.eventTypes())
}

func TestCreateCollateralRejectsPastMaturity(t *testing.T) {
	svc, _, mq := newTestService(t)

	_, err := svc.CreateCollateral(context.Background(), CreateCollateralCommand{
		CollateralType: domain.CollateralTypeGovernmentBond,
		Description:    "matured bond",
		MarketValue:    decimal.NewFromInt(1000),
		Haircut:        decimal.NewFromFloat(0.1),
		Currency:       "USD",
		Rating:         domain.RatingAAA,
		MaturityDate:   time.Now().AddDate(0, 0, -1),
		Counterparty:   "Goldman Sachs",
	}, "alice")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.HTTPStatus(err))
	assert.Empty(t, mq.published)
}

func TestRevalueRecomputesEligible(t *testing.T) {
	svc, repo, mq := newTestService(t)
	seeded := seedCollateral(t, repo, domain.RatingAAA, 0.15, time.Now().AddDate(1, 0, 0))

	got, err := svc.Revalue(context.Background(), seeded.ID, decimal.NewFromInt(2000000), decimal.NewFromFloat(0.2), "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1600000).Equal(got.EligibleValue))
	assert.Equal(t, []events.EventType{events.EventCollateralRevalued}, mq.eventTypes())
}

func TestUpdateMarketValueKeepsHaircut(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seeded := seedCollateral(t, repo, domain.RatingAAA, 0.2, time.Now().AddDate(1, 0, 0))

	got, err := svc.UpdateMarketValue(context.Background(), seeded.ID, decimal.NewFromInt(500000), "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.2).Equal(got.Haircut))
	assert.True(t, decimal.NewFromInt(400000).Equal(got.EligibleValue))
}

func TestProcessMaturedCollaterals(t *testing.T) {
	svc, repo, mq := newTestService(t)
	past := seedCollateral(t, repo, domain.RatingAAA, 0.15, time.Now().AddDate(0, 0, -10))
	future := seedCollateral(t, repo, domain.RatingAA, 0.1, time.Now().AddDate(1, 0, 0))

	count, err := svc.ProcessMaturedCollaterals(context.Background(), "scheduler")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, domain.CollateralStatusMatured, repo.collaterals[past.ID].Status)
	assert.Equal(t, domain.CollateralStatusEligible, repo.collaterals[future.ID].Status)
	assert.Equal(t, []events.EventType{events.EventCollateralMatured, events.EventMaturityAlert}, mq.eventTypes())

	// 第二次清扫无事可做
	count, err = svc.ProcessMaturedCollaterals(context.Background(), "scheduler")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListEligibleByMinRating(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedCollateral(t, repo, domain.RatingAAA, 0.1, time.Now().AddDate(1, 0, 0))
	seedCollateral(t, repo, domain.RatingBBB, 0.1, time.Now().AddDate(1, 0, 0))
	seedCollateral(t, repo, domain.RatingBB, 0.1, time.Now().AddDate(1, 0, 0))

	got, err := svc.ListEligibleByMinRating(context.Background(), domain.RatingBBB)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = svc.ListEligibleByMinRating(context.Background(), "AAAA")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.HTTPStatus(err))
}

func TestHighRiskDefaultThreshold(t *testing.T) {
	svc, repo, _ := newTestService(t)
	risky := seedCollateral(t, repo, domain.RatingB, 0.4, time.Now().AddDate(1, 0, 0))
	seedCollateral(t, repo, domain.RatingAAA, 0.05, time.Now().AddDate(1, 0, 0))

	// 阈值非正时回落到默认 0.15
	got, err := svc.HighRiskCollaterals(context.Background(), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, risky.ID, got[0].ID)
}

func TestListExpiringValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	now := time.Now()
	_, err := svc.ListExpiringBetween(context.Background(), now, now.AddDate(0, 0, -1))
	require.Error(t, err)

	_, err = svc.ListExpiringInDays(context.Background(), -1)
	require.Error(t, err)
}

func TestUpdateStatusNotFound(t *testing.T) {
	svc, _, mq := newTestService(t)

	_, err := svc.UpdateStatus(context.Background(), 404, domain.CollateralStatusPledged, "alice")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperror.HTTPStatus(err))
	assert.Empty(t, mq.published)
}

func TestAverageHaircutByTypeEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)

	got, err := svc.AverageHaircutByType(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAverageHaircutForType(t *testing.T) {
	svc, repo, _ := newTestService(t)

	t.Run("no rows returns exactly zero", func(t *testing.T) {
		got, err := svc.AverageHaircutForType(context.Background(), domain.CollateralTypeEquity)
		require.NoError(t, err)
		assert.True(t, decimal.Zero.Equal(got))
	})

	t.Run("averages only the requested type", func(t *testing.T) {
		seedCollateral(t, repo, domain.RatingAAA, 0.1, time.Now().AddDate(1, 0, 0))
		seedCollateral(t, repo, domain.RatingAA, 0.3, time.Now().AddDate(1, 0, 0))

		got, err := svc.AverageHaircutForType(context.Background(), domain.CollateralTypeGovernmentBond)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromFloat(0.2).Equal(got))

		// 其他类型仍是空集
		got, err = svc.AverageHaircutForType(context.Background(), domain.CollateralTypeEquity)
		require.NoError(t, err)
		assert.True(t, decimal.Zero.Equal(got))
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := svc.AverageHaircutForType(context.Background(), "ANTIQUES")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, apperror.HTTPStatus(err))
	})
}
