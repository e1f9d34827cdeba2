package batch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/liquidador/batch"
	"github.com/warp/liquidador/settlement"
	"github.com/warp/liquidador/statutory"
)

func history(from, to int, paid int64) []settlement.PaymentObservation {
	var list []settlement.PaymentObservation
	for y := from; y <= to; y++ {
		list = append(list, settlement.PaymentObservation{
			Year:                 y,
			MesadaPaidByEmployer: decimal.NewFromInt(paid),
			NumberOfInstallments: 14,
		})
	}
	return list
}

func job(id string, obs []settlement.PaymentObservation) batch.Job {
	return batch.Job{
		CaseID:       settlement.CaseID(id),
		Observations: obs,
		Method:       settlement.Escolastica{},
		Index:        statutory.Reference(),
		Options:      settlement.DefaultOptions(),
	}
}

func TestRun_OutcomesInJobOrder(t *testing.T) {
	runner := batch.NewRunner(4, time.Second, zaptest.NewLogger(t))

	var jobs []batch.Job
	for i := 0; i < 20; i++ {
		jobs = append(jobs, job(fmt.Sprintf("case-%02d", i), history(1999, 2015, int64(200000+i*1000))))
	}

	outcomes := runner.Run(context.Background(), jobs)

	require.Len(t, outcomes, len(jobs))
	for i, o := range outcomes {
		assert.Equal(t, jobs[i].CaseID, o.CaseID)
		require.NoError(t, o.Err)
		require.NotNil(t, o.Settlement)
		assert.Len(t, o.Settlement.Rows, 17)
	}
}

func TestRun_MatchesSequentialCompute(t *testing.T) {
	// GIVEN: The same pensioner settled in a batch and directly
	// THEN: The tables are identical

	obs := history(1999, 2015, 900000)
	outcomes := batch.NewRunner(2, 0, nil).Run(context.Background(), []batch.Job{job("a", obs), job("b", obs)})

	direct, err := settlement.Compute(obs, statutory.Reference(), settlement.Escolastica{}, settlement.DefaultOptions())
	require.NoError(t, err)

	for _, o := range outcomes {
		require.NoError(t, o.Err)
		for i := range direct {
			assert.True(t, direct[i].AdjustedMesada.Equal(o.Settlement.Rows[i].AdjustedMesada))
			assert.True(t, direct[i].AmountOwed.Equal(o.Settlement.Rows[i].AmountOwed))
		}
	}
}

func TestRun_FailureIsolated(t *testing.T) {
	// GIVEN: Three pensioners, the middle one with a reordered history
	// THEN: Only the middle outcome fails

	bad := history(1999, 2001, 200000)
	bad[0], bad[1] = bad[1], bad[0]

	outcomes := batch.NewRunner(1, 0, zaptest.NewLogger(t)).Run(context.Background(), []batch.Job{
		job("ok-1", history(1999, 2001, 200000)),
		job("bad", bad),
		job("ok-2", history(2010, 2015, 500000)),
	})

	require.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, settlement.ErrUnorderedInput)
	assert.Nil(t, outcomes[1].Settlement)
	require.NoError(t, outcomes[2].Err)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := batch.NewRunner(2, 0, nil).Run(ctx, []batch.Job{
		job("a", history(1999, 2000, 1)),
		job("b", history(1999, 2000, 1)),
	})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
		assert.Nil(t, o.Settlement)
	}
}

func TestJobFromCase(t *testing.T) {
	c := settlement.Case{
		ID:           "case-1",
		Method:       settlement.MethodUnidadPrestacional,
		Observations: history(1999, 2000, 1),
	}
	j, err := batch.JobFromCase(c, statutory.Reference())
	require.NoError(t, err)
	assert.Equal(t, settlement.MethodUnidadPrestacional, j.Method.Name())

	c.Method = "unknown"
	_, err = batch.JobFromCase(c, statutory.Reference())
	assert.ErrorIs(t, err, settlement.ErrUnknownMethod)
}
