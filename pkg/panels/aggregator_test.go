package panels_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/panels"
	"github.com/dmelnik/lumen/pkg/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPanels(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Panels Suite")
}

const window = 20 * time.Millisecond

var _ = Describe("Aggregator", func() {
	var agg *panels.Aggregator

	BeforeEach(func() {
		agg = panels.New(window)
	})

	AfterEach(func() {
		agg.Close()
	})

	Describe("initial state", func() {
		It("should expose five idle panels", func() {
			snap := agg.Snapshot()
			Expect(snap).To(HaveLen(generation.PanelsCount))
			for _, s := range snap {
				Expect(s.Status).To(Equal(generation.StatusIdle))
				Expect(s.Text).To(BeEmpty())
			}
		})
	})

	Describe("delta accumulation", func() {
		It("should coalesce a burst into exactly one concatenated append", func() {
			agg.Submit(0)
			agg.AppendDelta(0, "a")
			agg.AppendDelta(0, "b")
			agg.AppendDelta(0, "c")

			// Nothing applied before the window elapses.
			Expect(agg.Snapshot()[0].Text).To(BeEmpty())

			Eventually(func() string {
				return agg.Snapshot()[0].Text
			}, 10*window).Should(Equal("abc"))

			// No duplication afterwards.
			Consistently(func() string {
				return agg.Snapshot()[0].Text
			}, 3*window).Should(Equal("abc"))
		})

		It("should preserve FIFO order across windows", func() {
			agg.Submit(1)
			for i := 0; i < 5; i++ {
				agg.AppendDelta(1, fmt.Sprintf("%d", i))
				time.Sleep(2 * window)
			}
			Eventually(func() string {
				return agg.Snapshot()[1].Text
			}, 10*window).Should(Equal("01234"))
		})

		It("should keep panels independent", func() {
			agg.Submit(0)
			agg.Submit(4)
			agg.AppendDelta(0, "zero")
			agg.AppendDelta(4, "four")

			Eventually(func() string { return agg.Snapshot()[0].Text }, 10*window).Should(Equal("zero"))
			Eventually(func() string { return agg.Snapshot()[4].Text }, 10*window).Should(Equal("four"))
			Expect(agg.Snapshot()[2].Text).To(BeEmpty())
		})

		It("should drop deltas for a panel that is not loading", func() {
			agg.AppendDelta(3, "stray")
			time.Sleep(3 * window)
			Expect(agg.Snapshot()[3].Text).To(BeEmpty())
			Expect(agg.Snapshot()[3].Status).To(Equal(generation.StatusIdle))
		})
	})

	Describe("MarkDone", func() {
		It("should flush the queued tail before finalizing", func() {
			agg.Submit(0)
			agg.AppendDelta(0, "hello ")
			time.Sleep(3 * window)
			agg.AppendDelta(0, "tail")
			// Finalize inside the debounce window.
			agg.MarkDone(0)

			state := agg.Snapshot()[0]
			Expect(state.Text).To(Equal("hello tail"))
			Expect(state.Status).To(Equal(generation.StatusDone))
		})

		It("should not resurrect an aborted panel", func() {
			agg.Submit(0)
			agg.Abort(0)
			agg.MarkDone(0)
			Expect(agg.Snapshot()[0].Status).To(Equal(generation.StatusIdle))
		})
	})

	Describe("Fail", func() {
		It("should keep accumulated text and set the message", func() {
			agg.Submit(2)
			agg.AppendDelta(2, "partial")
			agg.Fail(2, "boom")

			state := agg.Snapshot()[2]
			Expect(state.Status).To(Equal(generation.StatusError))
			Expect(state.Error).To(Equal("boom"))
			Expect(state.Text).To(Equal("partial"))
		})

		It("should never leave an error state without a message", func() {
			agg.Submit(2)
			agg.Fail(2, "")
			Expect(agg.Snapshot()[2].Error).ToNot(BeEmpty())
		})
	})

	Describe("Abort", func() {
		It("should return a loading panel to idle and fire the handle once", func() {
			calls := 0
			agg.Submit(0)
			agg.BindAbort(0, func() { calls++ })
			agg.AppendDelta(0, "in flight")

			agg.Abort(0)
			Expect(agg.Snapshot()[0].Status).To(Equal(generation.StatusIdle))
			Expect(agg.Snapshot()[0].Text).To(BeEmpty())
			Expect(calls).To(Equal(1))

			// Idempotent: a second abort is a no-op.
			agg.Abort(0)
			Expect(calls).To(Equal(1))
			Expect(agg.Snapshot()[0].Status).To(Equal(generation.StatusIdle))
		})

		It("should not change a panel that is not loading", func() {
			agg.Submit(1)
			agg.AppendDelta(1, "x")
			agg.MarkDone(1)
			agg.Abort(1)
			Expect(agg.Snapshot()[1].Status).To(Equal(generation.StatusDone))
			Expect(agg.Snapshot()[1].Text).To(Equal("x"))
		})

		It("should discard queued but unflushed deltas", func() {
			agg.Submit(0)
			agg.AppendDelta(0, "never seen")
			agg.Abort(0)
			time.Sleep(3 * window)
			Expect(agg.Snapshot()[0].Text).To(BeEmpty())
		})
	})

	Describe("UpdateGrounding", func() {
		It("should merge sources and queries without touching text or status", func() {
			agg.Submit(0)
			agg.AppendDelta(0, "body")
			agg.UpdateGrounding(0, &stream.GroundingMetadata{
				Sources:       []generation.GroundingSource{{Title: "A", URI: "https://a"}},
				SearchQueries: []string{"q1"},
			})
			agg.UpdateGrounding(0, &stream.GroundingMetadata{
				Sources:       []generation.GroundingSource{{Title: "A", URI: "https://a"}, {Title: "B", URI: "https://b"}},
				SearchQueries: []string{"q1", "q2"},
			})

			state := agg.Snapshot()[0]
			Expect(state.Status).To(Equal(generation.StatusLoading))
			Expect(state.Sources).To(HaveLen(2))
			Expect(state.SearchQueries).To(Equal([]string{"q1", "q2"}))

			Eventually(func() string { return agg.Snapshot()[0].Text }, 10*window).Should(Equal("body"))
		})
	})

	Describe("Snapshot", func() {
		It("should be isolated from later updates", func() {
			agg.Submit(0)
			agg.AppendDelta(0, "first")
			Eventually(func() string { return agg.Snapshot()[0].Text }, 10*window).Should(Equal("first"))

			before := agg.Snapshot()
			agg.AppendDelta(0, " second")
			Eventually(func() string { return agg.Snapshot()[0].Text }, 10*window).Should(Equal("first second"))
			Expect(before[0].Text).To(Equal("first"))
		})
	})

	Describe("Updates", func() {
		It("should deliver the latest snapshot after changes", func() {
			agg.Submit(0)
			agg.AppendDelta(0, "x")
			agg.MarkDone(0)

			Eventually(func() generation.Status {
				select {
				case snap := <-agg.Updates():
					return snap[0].Status
				default:
					return generation.StatusIdle
				}
			}, 10*window).Should(Equal(generation.StatusDone))
		})
	})

	Describe("Restore", func() {
		It("should install a persisted state verbatim", func() {
			saved := generation.StreamState{Text: "from history", Status: generation.StatusDone}
			agg.Restore(0, saved)
			Expect(agg.Snapshot()[0]).To(Equal(saved))
		})
	})

	Describe("Close", func() {
		It("should cancel pending flushes", func() {
			agg.Submit(0)
			agg.AppendDelta(0, "pending")
			agg.Close()
			time.Sleep(3 * window)
			Expect(agg.Snapshot()[0].Text).To(BeEmpty())

			// Recreate so AfterEach's Close targets a fresh aggregator.
			agg = panels.New(window)
		})

		It("should be safe to call twice", func() {
			agg.Close()
			agg.Close()
			agg = panels.New(window)
		})
	})
})
