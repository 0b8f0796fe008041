package timing

import (
	"errors"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gmeasure"
	"github.com/sarchlab/netexp/sim/hooking"
	gomock "go.uber.org/mock/gomock"
)

func mockEvent(
	ctrl *gomock.Controller,
	t VTimeInSec,
	handler Handler,
	secondary bool,
) *MockEvent {
	evt := NewMockEvent(ctrl)
	evt.EXPECT().Time().Return(t).AnyTimes()
	evt.EXPECT().Handler().Return(handler).AnyTimes()
	evt.EXPECT().IsSecondary().Return(secondary).AnyTimes()

	return evt
}

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should schedule events", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)
		evt1 := mockEvent(mockCtrl, 4.0, handler1, false)
		evt2 := mockEvent(mockCtrl, 2.0, handler2, false)
		evt3 := mockEvent(mockCtrl, 3.0, handler1, false)
		evt4 := mockEvent(mockCtrl, 5.0, handler1, false)

		handleEvt2 := handler2.EXPECT().Handle(evt2).Do(func(e Event) {
			_, err := engine.Schedule(evt3)
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.Schedule(evt4)
			Expect(err).NotTo(HaveOccurred())
		})
		handleEvt3 := handler1.EXPECT().
			Handle(evt3).Do(func(e Event) {}).After(handleEvt2)
		handleEvt1 := handler1.EXPECT().
			Handle(evt1).Do(func(e Event) {}).After(handleEvt3)
		handler1.EXPECT().
			Handle(evt4).Do(func(e Event) {}).After(handleEvt1)

		_, err := engine.Schedule(evt1)
		Expect(err).NotTo(HaveOccurred())
		_, err = engine.Schedule(evt2)
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
		Expect(engine.Now()).To(Equal(5.0))
	})

	It("should consider secondary events", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)
		handler3 := NewMockHandler(mockCtrl)
		evt1 := mockEvent(mockCtrl, 2.0, handler1, true)
		evt2 := mockEvent(mockCtrl, 2.0, handler2, false)
		evt3 := mockEvent(mockCtrl, 2.0, handler3, false)

		handleEvt2 := handler2.EXPECT().Handle(evt2)
		handleEvt3 := handler3.EXPECT().Handle(evt3)
		handler1.EXPECT().
			Handle(evt1).Do(func(e Event) {}).
			After(handleEvt2).
			After(handleEvt3)

		_, _ = engine.Schedule(evt1)
		_, _ = engine.Schedule(evt2)
		_, _ = engine.Schedule(evt3)

		Expect(engine.Run()).To(Succeed())
	})

	It("should run same-time events in submission order", func() {
		var order []int

		for i := 0; i < 20; i++ {
			i := i
			_, err := engine.ScheduleAfter(1.0, func(VTimeInSec) error {
				order = append(order, i)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(engine.Run()).To(Succeed())

		for i := range order {
			Expect(order[i]).To(Equal(i))
		}
	})

	It("should run events in non-decreasing time order", func() {
		r := rand.New(rand.NewSource(7))
		var times []VTimeInSec

		record := func(now VTimeInSec) error {
			times = append(times, now)
			return nil
		}

		for i := 0; i < 500; i++ {
			delay := VTimeInSec(r.Intn(50)) * 0.1
			_, err := engine.ScheduleAfter(delay, func(now VTimeInSec) error {
				if r.Intn(3) == 0 {
					_, err := engine.ScheduleAfter(
						VTimeInSec(r.Intn(5))*0.1, record)
					Expect(err).NotTo(HaveOccurred())
				}

				return record(now)
			})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(engine.Run()).To(Succeed())

		for i := 1; i < len(times); i++ {
			Expect(times[i]).To(BeNumerically(">=", times[i-1]))
		}
	})

	It("should produce the same order for the same input", func() {
		trace := func() []int {
			e := NewSerialEngine()
			var order []int

			for i := 0; i < 100; i++ {
				i := i
				_, _ = e.ScheduleAfter(VTimeInSec(i%7), func(VTimeInSec) error {
					order = append(order, i)
					return nil
				})
			}

			Expect(e.Run()).To(Succeed())

			return order
		}

		Expect(trace()).To(Equal(trace()))
	})

	It("should not run cancelled events", func() {
		ran := false
		id, err := engine.ScheduleAfter(1, func(VTimeInSec) error {
			ran = true
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.PendingEvents()).To(Equal(1))

		Expect(engine.Cancel(id)).To(BeTrue())
		Expect(engine.PendingEvents()).To(Equal(0))
		Expect(engine.Run()).To(Succeed())
		Expect(ran).To(BeFalse())
	})

	It("should treat cancelling twice or after execution as a no-op", func() {
		count := 0
		id, _ := engine.ScheduleAfter(1, func(VTimeInSec) error {
			count++
			return nil
		})

		Expect(engine.Run()).To(Succeed())
		Expect(count).To(Equal(1))
		Expect(engine.Cancel(id)).To(BeFalse())

		id2, _ := engine.ScheduleAfter(1, func(VTimeInSec) error {
			count++
			return nil
		})
		Expect(engine.Cancel(id2)).To(BeTrue())
		Expect(engine.Cancel(id2)).To(BeFalse())
		Expect(engine.Run()).To(Succeed())
		Expect(count).To(Equal(1))
	})

	It("should let an event cancel a same-time event", func() {
		ran := false
		var victim EventID

		_, _ = engine.ScheduleAfter(1, func(VTimeInSec) error {
			Expect(engine.Cancel(victim)).To(BeTrue())
			return nil
		})
		victim, _ = engine.ScheduleAfter(1, func(VTimeInSec) error {
			ran = true
			return nil
		})

		Expect(engine.Run()).To(Succeed())
		Expect(ran).To(BeFalse())
	})

	It("should reject invalid scheduling", func() {
		noop := func(VTimeInSec) error { return nil }

		_, err := engine.ScheduleAfter(-1, noop)
		Expect(errors.Is(err, ErrNegativeDelay)).To(BeTrue())

		_, err = engine.ScheduleAfter(math.NaN(), noop)
		Expect(errors.Is(err, ErrInvalidTime)).To(BeTrue())

		_, err = engine.ScheduleAfter(math.Inf(1), noop)
		Expect(errors.Is(err, ErrInvalidTime)).To(BeTrue())

		_, err = engine.ScheduleAfter(1, nil)
		Expect(errors.Is(err, ErrNilHandler)).To(BeTrue())

		Expect(engine.RunUntil(5)).To(Succeed())

		_, err = engine.Schedule(NewFuncEvent(4, noop))
		Expect(errors.Is(err, ErrEventInPast)).To(BeTrue())

		err = engine.RunUntil(3)
		Expect(errors.Is(err, ErrStopInPast)).To(BeTrue())

		Expect(engine.PendingEvents()).To(Equal(0))
	})

	It("should stop at the stop time and advance the clock", func() {
		var ran []VTimeInSec
		record := func(now VTimeInSec) error {
			ran = append(ran, now)
			return nil
		}

		_, _ = engine.ScheduleAfter(1, record)
		_, _ = engine.ScheduleAfter(2, record)
		_, _ = engine.ScheduleAfter(3, record)

		Expect(engine.RunUntil(2)).To(Succeed())
		Expect(ran).To(Equal([]VTimeInSec{1, 2}))
		Expect(engine.Now()).To(Equal(2.0))
		Expect(engine.PendingEvents()).To(Equal(1))

		Expect(engine.RunUntil(10)).To(Succeed())
		Expect(ran).To(Equal([]VTimeInSec{1, 2, 3}))
		Expect(engine.Now()).To(Equal(10.0))
	})

	It("should not allow running from inside an event", func() {
		var innerErr error
		_, _ = engine.ScheduleAfter(1, func(VTimeInSec) error {
			innerErr = engine.RunUntil(5)
			return nil
		})

		Expect(engine.Run()).To(Succeed())
		Expect(errors.Is(innerErr, ErrReentrantRun)).To(BeTrue())
	})

	It("should stop the run on a handler error", func() {
		boom := errors.New("boom")
		later := false

		_, _ = engine.ScheduleAfter(1, func(VTimeInSec) error { return boom })
		_, _ = engine.ScheduleAfter(2, func(VTimeInSec) error {
			later = true
			return nil
		})

		err := engine.RunUntil(3)
		Expect(errors.Is(err, boom)).To(BeTrue())
		Expect(later).To(BeFalse())
		Expect(engine.Now()).To(Equal(1.0))
	})

	It("should invoke hooks around events", func() {
		var positions []string
		engine.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
		}))

		_, _ = engine.ScheduleAfter(1, func(VTimeInSec) error {
			positions = append(positions, "event")
			return nil
		})

		Expect(engine.Run()).To(Succeed())
		Expect(positions).To(Equal([]string{"BeforeEvent", "event", "AfterEvent"}))
	})

	It("measure triggering speed", func() {
		experiment := gmeasure.NewExperiment("Serial Engine Triggering Speed")
		AddReportEntry(experiment.Name, experiment)

		experiment.MeasureDuration("runtime", func() {
			for i := 0; i < 10000; i++ {
				delay := VTimeInSec(float64(rand.Uint64()%10) * 0.01)
				_, _ = engine.ScheduleAfter(delay, func(VTimeInSec) error {
					return nil
				})
			}

			Expect(engine.Run()).To(Succeed())
		})
	})
})
