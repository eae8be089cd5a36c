package harvest

import (
	"context"
	"errors"
	"sync"
	"time"

	"bronze-harvest/internal/opendata"

	"github.com/stretchr/testify/mock"
)

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

var countsSpec = DatasetSpec{
	Name:      "counts",
	Dataset:   "comptage-velo-donnees-compteurs",
	Prefix:    "paris_bike_counts",
	PageSize:  100,
	PageLimit: 10,
}

func (s *ServiceSuite) TestRunPlan_SequentialKeepsOrder() {
	s.client.On("Search", mock.Anything, params(counters.Dataset, 100, 0)).Return(pageOf(30, 30), nil).Once()
	s.client.On("Search", mock.Anything, params(countsSpec.Dataset, 100, 0)).Return(pageOf(0, 0), nil).Once()

	results, err := s.svc.RunPlan(context.Background(), []Job{{Spec: counters}, {Spec: countsSpec}}, false)

	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Equal(counters.Dataset, results[0].Spec.Dataset)
	s.Equal(ReasonExhausted, results[0].Reason)
	s.Equal(ReasonEmpty, results[1].Reason)
	s.Contains(s.logBuf.String(), "[SUMMARY] counters pages: 1 (exhausted) | counts pages: 1 (empty)")
}

func (s *ServiceSuite) TestRunPlan_ParallelRunsAreIsolated() {
	s.client.On("Search", mock.Anything, params(counters.Dataset, 100, 0)).Return(pageOf(100, 200), nil).Once()
	s.client.On("Search", mock.Anything, params(counters.Dataset, 100, 100)).Return(pageOf(100, 200), nil).Once()
	s.client.On("Search", mock.Anything, params(countsSpec.Dataset, 100, 0)).Return(pageOf(100, 150), nil).Once()
	s.client.On("Search", mock.Anything, params(countsSpec.Dataset, 100, 100)).Return(pageOf(50, 150), nil).Once()

	results, err := s.svc.RunPlan(context.Background(), []Job{{Spec: counters}, {Spec: countsSpec}}, true)

	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Len(results[0].Pages, 2)
	s.Equal(200, results[0].Records)
	s.Len(results[1].Pages, 2)
	s.Equal(150, results[1].Records)
	s.NotEqual(results[0].RunID, results[1].RunID)
	s.Equal(4, s.writer.count())
	s.client.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestRunPlan_FailureStopsPlan() {
	boom := &opendata.TransportError{URL: "http://x", Err: errors.New("reset")}
	s.client.On("Search", mock.Anything, params(counters.Dataset, 100, 0)).Return(opendata.Page{}, boom).Once()

	results, err := s.svc.RunPlan(context.Background(), []Job{{Spec: counters}, {Spec: countsSpec}}, false)

	s.ErrorIs(err, opendata.ErrTransport)
	s.Nil(results)
	s.client.AssertNotCalled(s.T(), "Search", mock.Anything, params(countsSpec.Dataset, 100, 0))
}

// TestStartPolling_StopsAfterMaxPolls stop after maxPolls and run the plan that many times.
func (s *ServiceSuite) TestStartPolling_StopsAfterMaxPolls() {
	maxPolls := 2

	// inject fake ticker
	tickCh := make(chan time.Time)
	ft := &fakeTicker{ch: tickCh}

	s.svc.newTicker = func(d time.Duration) ticker {
		return ft
	}

	var wg sync.WaitGroup
	wg.Add(maxPolls)

	s.client.
		On("Search", mock.Anything, params(counters.Dataset, 100, 0)).
		Return(pageOf(10, 10), nil).
		Run(func(args mock.Arguments) {
			wg.Done()
		}).
		Times(maxPolls)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.svc.StartPolling(ctx, time.Second, time.Minute, maxPolls, []Job{{Spec: counters}})
		close(done)
	}()

	// Manually trigger exactly maxPolls ticks
	tickCh <- time.Now()
	tickCh <- time.Now()

	// Wait until both polls have happened and the poller returned
	wg.Wait()
	<-done

	s.client.AssertExpectations(s.T())
	s.Contains(s.logBuf.String(), "poller stopping after 2 polls")
}

func (s *ServiceSuite) TestStartPolling_StopsOnCancel() {
	tickCh := make(chan time.Time)
	s.svc.newTicker = func(d time.Duration) ticker {
		return &fakeTicker{ch: tickCh}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.svc.StartPolling(ctx, time.Second, time.Minute, 0, []Job{{Spec: counters}})
		close(done)
	}()

	cancel()
	<-done

	s.client.AssertNotCalled(s.T(), "Search", mock.Anything, mock.Anything)
	s.Contains(s.logBuf.String(), "poller stopping, context cancelled")
}
