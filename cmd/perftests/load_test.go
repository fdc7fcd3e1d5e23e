package perftests

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auction-engine/internal/auctionstate"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	repository "auction-engine/internal/repository"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name            string
	NumUsers        int
	NumAuctions     int
	ReadRatio       int
	MaxBidIncrement int
	Burst           bool // if true, no delay between ops
}

// OperationMetrics collects latencies safely
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (min, max, avg, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.latencies) == 0 {
		return
	}
	latencies := append([]time.Duration(nil), om.latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	min = latencies[0]
	max = latencies[len(latencies)-1]

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	avg = total / time.Duration(len(latencies))
	p95 = latencies[int(0.95*float64(len(latencies)))]
	p99 = latencies[int(0.99*float64(len(latencies)))]
	return
}

// setupRepo creates a repository with numAuctions active auctions, each
// open to numUsers paid registrations, and a bidding service over it
func setupRepo(tb testing.TB, numAuctions, numUsers int) (*repository.MemoryRepo, *bidding.BiddingService) {
	tb.Helper()
	ctx := context.Background()
	clk := clock.NewClock()
	repo := repository.NewMemoryRepo()
	machine := auctionstate.NewMachine(repo, clk, 0)

	now := clk.Now()
	for i := 0; i < numAuctions; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		productID := fmt.Sprintf("product_%d", i)
		if err := repo.AddProduct(ctx, model.Product{ProductID: productID, Name: "Load test lot", BasePrice: decimal.NewFromInt(100)}); err != nil {
			tb.Fatalf("add product: %v", err)
		}
		_, err := machine.Create(ctx, auctionstate.CreateAuctionParams{
			AuctionID:    auctionID,
			ProductID:    productID,
			StartTime:    now.Add(time.Millisecond),
			EndTime:      now.Add(24 * time.Hour),
			StartingBid:  decimal.NewFromInt(100),
			BidIncrement: decimal.NewFromInt(1),
		})
		if err != nil {
			tb.Fatalf("create auction: %v", err)
		}
		if _, err := machine.Submit(ctx, auctionID); err != nil {
			tb.Fatalf("submit auction: %v", err)
		}
		if _, err := machine.Approve(ctx, auctionID); err != nil {
			tb.Fatalf("approve auction: %v", err)
		}
		for u := 0; u < numUsers; u++ {
			reg := model.Registration{AuctionID: auctionID, UserID: fmt.Sprintf("user_%d", u), FeePaid: true, PaidAt: now}
			if err := repo.AddRegistration(ctx, reg); err != nil {
				tb.Fatalf("add registration: %v", err)
			}
		}
	}

	svc := bidding.NewBiddingService(repo, bidding.Config{
		Clock:     clk,
		Extension: auctionstate.DefaultExtensionPolicy(),
		Auctions:  machine,
	})
	time.Sleep(2 * time.Millisecond) // let every auction reach its start
	return repo, svc
}

// isRejection reports whether err is an expected refusal rather than a failure
func isRejection(err error) bool {
	var rejection *biddingerrors.RejectionError
	return errors.As(err, &rejection)
}

// Benchmark_Load_BiddingSystem runs multiple scenarios
func Benchmark_Load_BiddingSystem(b *testing.B) {
	scenarios := []LoadScenario{
		{"Low-Contention-WriteHeavy", 200, 200, 0, 50, false},
		{"High-Contention-WriteHeavy", 500, 10, 0, 20, false},
		{"Mixed-Workload", 300, 50, 7, 30, false},
		{"ReadHeavy", 200, 50, 9, 20, false},
		{"Edge-Case-SingleAuction", 100, 1, 5, 10, false},
		{"Peak-Burst", 500, 50, 0, 20, true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()

	_, svc := setupRepo(b, s.NumAuctions, s.NumUsers)
	ctx := context.Background()

	var totalOps, acceptedBids, rejectedBids, failedBids, totalReads int64
	auctionSuccess := make([]int64, s.NumAuctions)
	latest := make([]int64, s.NumAuctions)
	for i := range latest {
		latest[i] = 100
	}
	metrics := &OperationMetrics{}

	start := time.Now()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(time.Now().Nanosecond())))

		for pb.Next() {
			auctionIndex := rnd.Intn(s.NumAuctions)
			auctionID := fmt.Sprintf("auction_%d", auctionIndex)
			opType := rnd.Intn(10)

			opStart := time.Now()
			if opType < s.ReadRatio {
				if _, err := svc.GetWinningBid(ctx, auctionID); err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
					b.Logf("ignored read error: %v", err)
				}
				atomic.AddInt64(&totalReads, 1)
			} else {
				// bid around the last price seen so some bids lose the race
				amount := atomic.LoadInt64(&latest[auctionIndex]) + int64(1+rnd.Intn(s.MaxBidIncrement))
				_, err := svc.SubmitBid(ctx, model.BidRequest{
					AuctionID: auctionID,
					UserID:    fmt.Sprintf("user_%d", rnd.Intn(s.NumUsers)),
					Amount:    decimal.NewFromInt(amount),
				})
				switch {
				case err == nil:
					atomic.AddInt64(&acceptedBids, 1)
					atomic.AddInt64(&auctionSuccess[auctionIndex], 1)
					for {
						cur := atomic.LoadInt64(&latest[auctionIndex])
						if amount <= cur || atomic.CompareAndSwapInt64(&latest[auctionIndex], cur, amount) {
							break
						}
					}
				case isRejection(err):
					atomic.AddInt64(&rejectedBids, 1)
				default:
					b.Logf("bid error: %v", err)
					atomic.AddInt64(&failedBids, 1)
				}
			}

			metrics.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	min, max, avg, p95, p99 := metrics.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"Scenario: %s | Auctions: %d | Total Ops: %d | Accepted: %d | Rejected: %d | Failed: %d | Reads: %d | Elapsed: %s | Throughput: %.2f ops/sec | Latency(us) min: %.2f avg: %.2f max: %.2f p95: %.2f p99: %.2f | Memory Alloc: %.2f MB",
		s.Name, s.NumAuctions, totalOps, acceptedBids, rejectedBids, failedBids, totalReads, elapsed,
		throughput,
		float64(min.Microseconds()), float64(avg.Microseconds()), float64(max.Microseconds()),
		float64(p95.Microseconds()), float64(p99.Microseconds()),
		float64(mem.Alloc)/1024/1024,
	)

	if failedBids > 0 {
		b.Errorf("%d bids failed with non-rejection errors", failedBids)
	}
	for i, v := range auctionSuccess {
		if v > 0 {
			b.Logf("Auction %d accepted bids: %d", i, v)
		}
	}
}
