package traffic

import (
	"bytes"
	"errors"
	"log"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
	gomock "go.uber.org/mock/gomock"
)

var dst = netip.MustParseAddrPort("10.1.1.2:9")

// At 8Mbps a 1000-byte packet takes 1ms.
func testParams() Params {
	return Params{
		Node:        0,
		Destination: dst,
		Protocol:    flow.UDP,
		PacketSize:  1000,
		DataRate:    8 * timing.Mbps,
	}
}

var _ = Describe("PacedGenerator", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *timing.SerialEngine
		dialer   *MockDialer
		endpoint *MockEndpoint
		gen      *PacedGenerator
		sentAt   []timing.VTimeInSec
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()
		dialer = NewMockDialer(mockCtrl)
		endpoint = NewMockEndpoint(mockCtrl)
		gen = NewPacedGenerator("Client", engine, dialer)
		sentAt = nil

		dialer.EXPECT().
			Dial(gomock.Any(), flow.UDP, dst).
			Return(endpoint, nil).
			AnyTimes()
		endpoint.EXPECT().
			Send(gomock.Any()).
			DoAndReturn(func(size int) error {
				sentAt = append(sentAt, engine.Now())
				return nil
			}).
			AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should send exactly the packet limit, evenly spaced", func() {
		endpoint.EXPECT().Close().Times(1)

		p := testParams()
		p.PacketLimit = 5
		Expect(gen.Start(p)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(sentAt).To(HaveLen(5))
		for i, t := range sentAt {
			Expect(t).To(BeNumerically("~", float64(i)*0.001, 1e-12))
		}

		s := gen.State()
		Expect(s.PacketsSent).To(Equal(uint64(5)))
		Expect(s.BytesSent).To(Equal(uint64(5000)))
		Expect(s.Running).To(BeFalse())
		Expect(s.PendingSend).To(BeZero())
	})

	It("should stop before exceeding the byte limit", func() {
		endpoint.EXPECT().Close().Times(1)

		p := testParams()
		p.ByteLimit = 2500
		Expect(gen.Start(p)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(sentAt).To(HaveLen(2))
	})

	It("should check the byte limit before the first packet", func() {
		endpoint.EXPECT().Close().Times(1)

		p := testParams()
		p.ByteLimit = 500
		Expect(gen.Start(p)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(sentAt).To(BeEmpty())
		Expect(gen.State().Running).To(BeFalse())
	})

	It("should reject bad parameters", func() {
		p := testParams()
		p.DataRate = 0
		Expect(errors.Is(gen.Start(p), ErrZeroDataRate)).To(BeTrue())

		p = testParams()
		p.PacketSize = 0
		Expect(errors.Is(gen.Start(p), ErrInvalidPacketSize)).To(BeTrue())

		_, err := gen.ScheduleStart(1, p)
		Expect(errors.Is(err, ErrInvalidPacketSize)).To(BeTrue())
	})

	It("should not start twice", func() {
		endpoint.EXPECT().Close().Times(1)

		Expect(gen.Start(testParams())).To(Succeed())
		Expect(errors.Is(gen.Start(testParams()), ErrAlreadyRunning)).To(BeTrue())
		Expect(gen.Stop()).To(Succeed())
	})

	It("should ignore stop after a natural finish", func() {
		endpoint.EXPECT().Close().Times(1)

		p := testParams()
		p.PacketLimit = 2
		Expect(gen.Start(p)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(gen.Stop()).To(Succeed())
		Expect(gen.Stop()).To(Succeed())
	})

	It("should start and stop at scheduled times", func() {
		endpoint.EXPECT().Close().Times(1)

		_, err := gen.ScheduleStart(1, testParams())
		Expect(err).NotTo(HaveOccurred())
		_, err = gen.ScheduleStop(1.0035)
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.RunUntil(10)).To(Succeed())

		Expect(sentAt).To(HaveLen(4))
		Expect(sentAt[0]).To(Equal(1.0))
		Expect(engine.PendingEvents()).To(BeZero())
	})

	It("should draw sizes from the sizer", func() {
		endpoint.EXPECT().Close().Times(1)

		var sizes []int
		gen.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosPacketSent {
				sizes = append(sizes, ctx.Detail.(int))
			}
		}))

		p := testParams()
		p.PacketLimit = 50
		p.Sizer = NewUniformSize("Sizer", 100, 200)
		Expect(gen.Start(p)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(sizes).To(HaveLen(50))
		total := 0
		for _, s := range sizes {
			Expect(s).To(BeNumerically(">=", 100))
			Expect(s).To(BeNumerically("<=", 200))
			total += s
		}
		Expect(gen.State().BytesSent).To(Equal(uint64(total)))
	})

	It("should log when done", func() {
		endpoint.EXPECT().Close().Times(1)

		buf := new(bytes.Buffer)
		gen.AcceptHook(NewLogger(log.New(buf, "", 0), engine, false))

		p := testParams()
		p.PacketLimit = 3
		Expect(gen.Start(p)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(buf.String()).To(Equal(
			"0.0020000000, Client done, 3 packets, 3000 bytes\n"))
	})
})

var _ = Describe("PacedGenerator stop", func() {
	It("should cancel exactly the pending send", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		defer mockCtrl.Finish()

		engine := NewMockEventScheduler(mockCtrl)
		dialer := NewMockDialer(mockCtrl)
		endpoint := NewMockEndpoint(mockCtrl)
		gen := NewPacedGenerator("Client", engine, dialer)

		dialer.EXPECT().Dial(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(endpoint, nil)
		endpoint.EXPECT().Send(1000).Return(nil)
		engine.EXPECT().ScheduleAfter(0.001, gomock.Any()).
			Return(timing.EventID(42), nil)
		engine.EXPECT().Now().Return(0.0).AnyTimes()
		engine.EXPECT().Cancel(timing.EventID(42)).Return(true).Times(1)
		endpoint.EXPECT().Close().Return(nil).Times(1)

		Expect(gen.Start(testParams())).To(Succeed())
		Expect(gen.State().PendingSend).To(Equal(timing.EventID(42)))

		Expect(gen.Stop()).To(Succeed())
		Expect(gen.Stop()).To(Succeed())
		Expect(gen.State().PendingSend).To(BeZero())
	})

	It("should halt and release the endpoint when a send fails", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		defer mockCtrl.Finish()

		engine := timing.NewSerialEngine()
		dialer := NewMockDialer(mockCtrl)
		endpoint := NewMockEndpoint(mockCtrl)
		gen := NewPacedGenerator("Client", engine, dialer)
		sendErr := errors.New("no route")

		dialer.EXPECT().Dial(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(endpoint, nil).
			Times(2)
		endpoint.EXPECT().Send(1000).Return(sendErr)
		endpoint.EXPECT().Send(1000).Return(nil)
		endpoint.EXPECT().Close().Return(nil).Times(2)

		Expect(gen.Start(testParams())).To(MatchError(sendErr))

		s := gen.State()
		Expect(s.Running).To(BeFalse())
		Expect(s.PendingSend).To(BeZero())
		Expect(s.PacketsSent).To(BeZero())

		Expect(gen.Start(testParams())).To(Succeed())
		Expect(gen.State().PacketsSent).To(Equal(uint64(1)))
		Expect(gen.Stop()).To(Succeed())
	})

	It("should compute the rate of interval clients", func() {
		Expect(RateForInterval(1024, 1)).To(Equal(timing.DataRate(8192)))
		Expect(RateForInterval(1024, 0)).To(BeZero())
	})
})
