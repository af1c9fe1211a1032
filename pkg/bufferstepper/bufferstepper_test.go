package bufferstepper

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"klipper-buffer-stepper/pkg/buttons"
	"klipper-buffer-stepper/pkg/config"
	hosterr "klipper-buffer-stepper/pkg/errors"
	"klipper-buffer-stepper/pkg/gcode"
	"klipper-buffer-stepper/pkg/history"
	"klipper-buffer-stepper/pkg/metrics"
	"klipper-buffer-stepper/pkg/motion"
	"klipper-buffer-stepper/pkg/reactor"
)

var _ = Describe("BufferStepper", func() {
	var (
		mockCtrl  *gomock.Controller
		react     *MockReactor
		clock     *MockClockProvider
		executor  *MockExecutor
		enable    *MockEnableLine
		recorder  *MockRecorder
		cfg       *config.BufferStepperConfig
		responses []string
		m         *metrics.BufferStepperMetrics
		b         *BufferStepper
	)

	build := func() {
		var err error
		b, err = New(cfg, Deps{
			Reactor:  react,
			Clock:    clock,
			Executor: executor,
			Enable:   enable,
			History:  recorder,
			Metrics:  m,
			Respond:  func(msg string) { responses = append(responses, msg) },
		})
		Expect(err).NotTo(HaveOccurred())
	}

	// armAt runs HandleReady and fires the grace timer at eventtime.
	armAt := func(eventtime float64) {
		var cb reactor.TimerCallback
		react.EXPECT().RegisterTimer(gomock.Any(), 100.5).
			DoAndReturn(func(fn reactor.TimerCallback, waketime float64) *reactor.Timer {
				cb = fn
				return &reactor.Timer{}
			})
		b.HandleReady()
		Expect(cb).NotTo(BeNil())
		Expect(cb(eventtime)).To(Equal(reactor.NEVER))
	}

	expectMove := func() {
		executor.EXPECT().Commit(gomock.Any())
		executor.EXPECT().Flush(gomock.Any(), gomock.Any()).Return(nil)
		recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		react = NewMockReactor(mockCtrl)
		clock = NewMockClockProvider(mockCtrl)
		executor = NewMockExecutor(mockCtrl)
		enable = NewMockEnableLine(mockCtrl)
		recorder = NewMockRecorder(mockCtrl)
		responses = nil
		m = metrics.NewBufferStepperMetrics()

		react.EXPECT().Monotonic().Return(100.0).AnyTimes()
		clock.EXPECT().EstimatedPrintTime(gomock.Any()).Return(10.0).AnyTimes()

		cfg = &config.BufferStepperConfig{
			Name:            "feeder",
			MCU:             "EBB",
			Velocity:        5,
			Accel:           0,
			PushLength:      15,
			BufferTimeStart: 0.25,
			EventDelay:      3,
			StartupDelay:    0.5,
		}
		build()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should refuse to build without a controller clock", func() {
		_, err := New(cfg, Deps{Reactor: react, Executor: executor, Enable: enable})
		Expect(hosterr.Is(err, hosterr.ErrRuntimeInit)).To(BeTrue())
	})

	It("should refuse to build without an enable line", func() {
		_, err := New(cfg, Deps{Reactor: react, Clock: clock, Executor: executor})
		Expect(hosterr.Is(err, hosterr.ErrRuntimeInit)).To(BeTrue())
	})

	Context("when the sensor triggers after the grace window", func() {
		It("should push once with a pure cruise profile", func() {
			b.DoSetPosition(7)

			Expect(b.HandleEdge(100.1, true)).To(Equal(buttons.ResultGrace))
			Expect(b.HandleEdge(100.2, false)).To(Equal(buttons.ResultGrace))
			armAt(100.5)

			var committed []motion.Segment
			executor.EXPECT().Commit(gomock.Any()).Do(func(segs []motion.Segment) {
				Expect(b.GetPosition()[0]).To(Equal(0.0))
				committed = append(committed, segs...)
			})
			executor.EXPECT().Flush(gomock.Any(), 13.25).Return(nil)
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, mv history.Move) error {
					Expect(mv.Cause).To(Equal(CauseTrigger))
					Expect(mv.Stepper).To(Equal("feeder"))
					Expect(mv.Duration()).To(BeNumerically("~", 3.0, 1e-12))
					return nil
				})

			Expect(b.HandleEdge(101, true)).To(Equal(buttons.ResultFired))

			Expect(committed).To(HaveLen(1))
			seg := committed[0]
			Expect(seg.StartTime).To(BeNumerically("~", 10.25, 1e-12))
			Expect(seg.AccelT).To(Equal(0.0))
			Expect(seg.DecelT).To(Equal(0.0))
			Expect(seg.CruiseT).To(BeNumerically("~", 3.0, 1e-12))
			Expect(seg.StartPos).To(Equal(0.0))
			Expect(seg.ID).NotTo(BeEmpty())

			Expect(b.Timeline().NextCommandTime()).To(BeNumerically("~", 13.25, 1e-12))
			Expect(b.Timeline().LastFlushTime()).To(BeNumerically("~", 13.25, 1e-12))
			Expect(b.GetPosition()).To(Equal([4]float64{15, 0, 0, 0}))
			Expect(responses).To(Equal([]string{MsgStartPushing, MsgPushed}))
			Expect(m.Moves.Get(metrics.Labels{"stepper": "feeder"})).To(Equal(uint64(1)))
		})

		It("should ignore edges before the grace window ends", func() {
			Expect(b.HandleEdge(100.3, true)).To(Equal(buttons.ResultGrace))
			Expect(b.Debouncer().Armed()).To(BeFalse())
			Expect(b.Debouncer().Fired()).To(Equal(0))
		})

		It("should announce the trigger in debug mode", func() {
			cfg.Debug = true
			build()
			armAt(100.5)
			expectMove()

			b.HandleEdge(101, true)
			Expect(responses).To(Equal([]string{MsgTriggered, MsgStartPushing, MsgPushed}))
		})
	})

	Context("with the debounce sequence", func() {
		It("should fire once per accepted on-edge", func() {
			armAt(0)
			executor.EXPECT().Commit(gomock.Any()).Times(2)
			executor.EXPECT().Flush(gomock.Any(), gomock.Any()).Return(nil).Times(2)
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).Times(2)

			Expect(b.HandleEdge(0, true)).To(Equal(buttons.ResultFired))
			Expect(b.HandleEdge(0.01, true)).To(Equal(buttons.ResultRepeat))
			Expect(b.HandleEdge(5, false)).To(Equal(buttons.ResultReleased))
			Expect(b.HandleEdge(5.5, true)).To(Equal(buttons.ResultFired))

			Expect(b.GetStatus(100).Moves).To(Equal(2))
			Expect(m.Edges.Get(metrics.Labels{"stepper": "feeder", "result": "repeat"})).To(Equal(uint64(1)))
		})

		It("should suppress triggers during cooldown when rearming", func() {
			cfg.RearmOnTrigger = true
			build()
			armAt(0)
			expectMove()

			Expect(b.HandleEdge(1, true)).To(Equal(buttons.ResultFired))
			Expect(b.HandleEdge(2, false)).To(Equal(buttons.ResultReleased))
			Expect(b.HandleEdge(2.5, true)).To(Equal(buttons.ResultEarly))
			Expect(b.Debouncer().MinEventTime()).To(Equal(4.0))
		})
	})

	Context("when the controller rejects a flush", func() {
		It("should report a controller error and keep the position", func() {
			executor.EXPECT().Commit(gomock.Any())
			executor.EXPECT().Flush(gomock.Any(), gomock.Any()).Return(errors.New("link down"))

			err := b.DoMove(15, 5, 0)
			Expect(err).To(HaveOccurred())
			Expect(hosterr.Is(err, hosterr.ErrRuntimeMCU)).To(BeTrue())
			Expect(b.GetPosition()[0]).To(Equal(0.0))
			Expect(responses).To(Equal([]string{MsgStartPushing}))
			Expect(m.FlushErrors.Get(metrics.Labels{"stepper": "feeder"})).To(Equal(uint64(1)))
		})
	})

	Context("with motor enable", func() {
		It("should switch the line at the next command time", func() {
			enable.EXPECT().MotorEnable(10.25)
			b.DoEnable(true)
			Expect(b.Enabled()).To(BeTrue())

			enable.EXPECT().MotorDisable(10.25)
			b.DoEnable(false)
			Expect(b.Enabled()).To(BeFalse())
		})
	})

	Context("with kinematics accessors", func() {
		It("should dwell and report the last move time", func() {
			Expect(b.GetLastMoveTime()).To(BeNumerically("~", 10.25, 1e-12))
			b.Dwell(-1)
			Expect(b.Timeline().NextCommandTime()).To(BeNumerically("~", 10.25, 1e-12))
			b.Dwell(0.5)
			Expect(b.GetLastMoveTime()).To(BeNumerically("~", 10.75, 1e-12))
		})

		It("should map positions", func() {
			b.SetPosition([]float64{3, 9, 9})
			Expect(b.GetPosition()).To(Equal([4]float64{3, 0, 0, 0}))
			Expect(b.CalcPosition(map[string]float64{"feeder": 4.5, "other": 1})).
				To(Equal([3]float64{4.5, 0, 0}))
		})

		It("should drip move with the configured acceleration", func() {
			cfg.Accel = 10
			build()
			var seg motion.Segment
			executor.EXPECT().Commit(gomock.Any()).Do(func(segs []motion.Segment) { seg = segs[0] })
			executor.EXPECT().Flush(gomock.Any(), gomock.Any()).Return(nil)
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

			Expect(b.DripMove([]float64{20}, 5)).To(Succeed())
			Expect(seg.Accel).To(Equal(10.0))
			Expect(seg.AccelT).To(BeNumerically("~", 0.5, 1e-12))
			Expect(seg.CruiseT).To(BeNumerically("~", 3.5, 1e-12))
			Expect(b.GetPosition()[0]).To(BeNumerically("~", 20, 1e-9))
		})
	})

	Context("with the BUFFER_STEPPER command", func() {
		var d *gcode.Dispatcher

		BeforeEach(func() {
			d = gcode.NewDispatcher()
			Expect(b.RegisterCommands(d)).To(Succeed())
		})

		DescribeTable("should reject invalid parameters without side effects",
			func(line string) {
				err := d.Run(line)
				Expect(hosterr.Is(err, hosterr.ErrGCodeInvalidParam)).To(BeTrue(), "%v", err)
				Expect(b.Enabled()).To(BeFalse())
				Expect(b.GetPosition()[0]).To(Equal(0.0))
			},
			Entry("zero speed", "BUFFER_STEPPER STEPPER=feeder ENABLE=1 MOVE=5 SPEED=0"),
			Entry("negative accel", "BUFFER_STEPPER STEPPER=feeder SET_POSITION=3 MOVE=5 ACCEL=-1"),
			Entry("zero move", "BUFFER_STEPPER STEPPER=feeder MOVE=0"),
			Entry("negative move", "BUFFER_STEPPER STEPPER=feeder MOVE=-2"),
			Entry("bad enable", "BUFFER_STEPPER STEPPER=feeder ENABLE=2"),
			Entry("bad sync", "BUFFER_STEPPER STEPPER=feeder MOVE=1 SYNC=3"),
		)

		It("should enable, set position and move in order", func() {
			gomock.InOrder(
				enable.EXPECT().MotorEnable(gomock.Any()),
				executor.EXPECT().Commit(gomock.Any()).Do(func(segs []motion.Segment) {
					Expect(segs[0].CruiseV).To(Equal(4.0))
					Expect(segs[0].Accel).To(Equal(8.0))
				}),
				executor.EXPECT().Flush(gomock.Any(), gomock.Any()).Return(nil),
				recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, mv history.Move) error {
						Expect(mv.Cause).To(Equal(CauseCommand))
						return nil
					}),
			)
			Expect(d.Run("BUFFER_STEPPER STEPPER=feeder ENABLE=1 SET_POSITION=4 MOVE=2 SPEED=4 ACCEL=8")).To(Succeed())
			Expect(b.Enabled()).To(BeTrue())
			Expect(b.GetPosition()[0]).To(BeNumerically("~", 2, 1e-9))
		})

		It("should only set the position without MOVE", func() {
			Expect(d.Run("BUFFER_STEPPER STEPPER=feeder SET_POSITION=6.5")).To(Succeed())
			Expect(b.GetPosition()[0]).To(Equal(6.5))
		})
	})

	It("should report status", func() {
		st := b.GetStatus(100)
		Expect(st.Name).To(Equal("feeder"))
		Expect(st.State).To(Equal("startup_grace"))
		Expect(st.Armed).To(BeFalse())
		Expect(st.MinEventTime).To(Equal(0.0))
		Expect(st.LastMove).To(BeNil())

		armAt(100.5)
		expectMove()
		b.HandleEdge(101, true)

		st = b.GetStatus(100)
		Expect(st.State).To(Equal("triggered"))
		Expect(st.Triggers).To(Equal(1))
		Expect(st.Moves).To(Equal(1))
		Expect(st.LastMove).NotTo(BeNil())
		Expect(st.LastMove.Distance).To(Equal(15.0))
		Expect(st.Timeline.NextCommandTime).To(BeNumerically("~", 13.25, 1e-12))
	})
})
