package poll_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/vinfast-community/ccar-command/mocks"
	"github.com/vinfast-community/ccar-command/pkg/poll"
)

var errTest = errors.New("subscription failed")

var _ = Describe("Transition", func() {
	cfg := poll.Config{
		Entity:        "charger.status",
		ChargingState: "charging",
		ShortInterval: time.Minute,
		LongInterval:  time.Hour,
	}

	It("tightens the interval when charging starts", func() {
		prev := poll.State{Interval: time.Hour, Charging: false}
		next, refresh := poll.Transition(prev, "charging", cfg)
		Expect(next.Charging).To(BeTrue())
		Expect(next.Interval).To(Equal(time.Minute))
		Expect(refresh).To(BeTrue())
	})

	It("does not refresh while charging continues", func() {
		prev := poll.State{Interval: time.Minute, Charging: true}
		next, refresh := poll.Transition(prev, "charging", cfg)
		Expect(next.Charging).To(BeTrue())
		Expect(refresh).To(BeFalse())
	})

	It("relaxes the interval when charging stops", func() {
		prev := poll.State{Interval: time.Minute, Charging: true}
		next, refresh := poll.Transition(prev, "idle", cfg)
		Expect(next.Charging).To(BeFalse())
		Expect(next.Interval).To(Equal(time.Hour))
		Expect(refresh).To(BeFalse())
	})

	It("treats unknown states as not charging", func() {
		prev := poll.State{Interval: time.Hour, Charging: false}
		next, refresh := poll.Transition(prev, "unavailable", cfg)
		Expect(next.Charging).To(BeFalse())
		Expect(refresh).To(BeFalse())
	})

	It("applies default intervals for the zero config", func() {
		next, _ := poll.Transition(poll.State{}, "anything", poll.Config{ChargingState: "charging"})
		Expect(next.Interval).To(Equal(poll.DefaultLongInterval))
		next, _ = poll.Transition(poll.State{}, "charging", poll.Config{ChargingState: "charging"})
		Expect(next.Interval).To(Equal(poll.DefaultShortInterval))
	})
})

var _ = Describe("Controller", func() {
	var (
		ctrl  *gomock.Controller
		sched *mocks.MockScheduler
		src   *mocks.MockStateSource
		cfg   poll.Config
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		sched = mocks.NewMockScheduler(ctrl)
		src = mocks.NewMockStateSource(ctrl)
		cfg = poll.Config{
			Entity:        "charger.status",
			ChargingState: "charging",
			ShortInterval: time.Minute,
			LongInterval:  time.Hour,
		}
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	Context("without a charger entity", func() {
		It("does nothing", func() {
			c := poll.NewController(poll.Config{}, sched, src)
			Expect(c.Start()).To(Succeed())
			Expect(c.CurrentState().Interval).To(Equal(poll.DefaultLongInterval))
			c.Stop()
		})
	})

	Context("starting", func() {
		It("applies the interval for the initial charger state without refreshing", func() {
			src.EXPECT().Current("charger.status").Return("charging", true)
			src.EXPECT().Subscribe("charger.status", gomock.Any()).Return(func() {}, nil)
			sched.EXPECT().SetInterval(time.Minute)

			c := poll.NewController(cfg, sched, src)
			Expect(c.Start()).To(Succeed())
			Expect(c.CurrentState().Charging).To(BeTrue())
		})

		It("keeps the long interval when the charger state is unknown", func() {
			src.EXPECT().Current("charger.status").Return("", false)
			src.EXPECT().Subscribe("charger.status", gomock.Any()).Return(func() {}, nil)

			c := poll.NewController(cfg, sched, src)
			Expect(c.Start()).To(Succeed())
			Expect(c.CurrentState().Charging).To(BeFalse())
			Expect(c.CurrentState().Interval).To(Equal(time.Hour))
		})

		It("propagates subscription failures", func() {
			src.EXPECT().Current("charger.status").Return("idle", true)
			src.EXPECT().Subscribe("charger.status", gomock.Any()).Return(nil, errTest)
			sched.EXPECT().SetInterval(time.Hour)

			c := poll.NewController(cfg, sched, src)
			Expect(c.Start()).To(MatchError(errTest))
		})
	})

	Context("state changes", func() {
		var c *poll.Controller

		BeforeEach(func() {
			src.EXPECT().Current("charger.status").Return("idle", true)
			src.EXPECT().Subscribe("charger.status", gomock.Any()).Return(func() {}, nil)
			sched.EXPECT().SetInterval(time.Hour)
			c = poll.NewController(cfg, sched, src)
			Expect(c.Start()).To(Succeed())
		})

		It("requests one refresh on the idle to charging edge", func() {
			sched.EXPECT().SetInterval(time.Minute)
			sched.EXPECT().RequestRefresh()
			c.HandleChange("idle", "charging")
			Expect(c.CurrentState().Charging).To(BeTrue())
		})

		It("ignores changes that do not flip the charging flag", func() {
			c.HandleChange("idle", "unavailable")
			Expect(c.CurrentState().Interval).To(Equal(time.Hour))
		})

		It("relaxes without refreshing when charging stops", func() {
			sched.EXPECT().SetInterval(time.Minute)
			sched.EXPECT().RequestRefresh()
			c.HandleChange("idle", "charging")

			sched.EXPECT().SetInterval(time.Hour)
			c.HandleChange("charging", "idle")
			Expect(c.CurrentState().Charging).To(BeFalse())
		})

		It("does not refresh again while charging persists", func() {
			sched.EXPECT().SetInterval(time.Minute)
			sched.EXPECT().RequestRefresh()
			c.HandleChange("idle", "charging")
			c.HandleChange("charging", "charging")
			Expect(c.CurrentState().Charging).To(BeTrue())
		})
	})

	Context("stopping", func() {
		It("unsubscribes exactly once", func() {
			calls := 0
			src.EXPECT().Current("charger.status").Return("idle", true)
			src.EXPECT().Subscribe("charger.status", gomock.Any()).Return(func() { calls++ }, nil)
			sched.EXPECT().SetInterval(time.Hour)

			c := poll.NewController(cfg, sched, src)
			Expect(c.Start()).To(Succeed())
			c.Stop()
			c.Stop()
			Expect(calls).To(Equal(1))
		})

		It("is safe before Start", func() {
			c := poll.NewController(cfg, sched, src)
			c.Stop()
		})
	})
})
