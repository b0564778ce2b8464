package tracing

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/hooking"
)

var _ = Describe("EventLogger", func() {
	var (
		buf    *bytes.Buffer
		logger *EventLogger
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		logger = NewEventLogger(zerolog.New(buf), zerolog.InfoLevel)
	})

	It("should log peripheral events", func() {
		pos := &hooking.HookPos{Name: "Radio Command"}

		logger.Func(hooking.HookCtx{
			Domain: namedDomain{hooking.NewHookableBase()},
			Pos:    pos,
			Item:   "Init",
		})

		Expect(buf.String()).To(ContainSubstring(`"pos":"Radio Command"`))
		Expect(buf.String()).To(ContainSubstring(`"source":"Radio[3]"`))
		Expect(buf.String()).To(ContainSubstring(`"item":"Init"`))
		Expect(buf.String()).To(ContainSubstring(`"level":"info"`))
	})

	It("should log task events", func() {
		exec, spawner := executor.MakeBuilder().WithHook(logger).Build()
		spawner.SpawnNamed("blink", future.Done(future.Unit{}))

		Expect(exec.Stats().Spawned).To(Equal(uint64(1)))
		Expect(buf.String()).To(ContainSubstring(`"name":"blink"`))
		Expect(buf.String()).To(ContainSubstring(`"pos":"` +
			executor.HookPosTaskSpawn.Name + `"`))
	})

	It("should respect the logger level", func() {
		quiet := NewEventLogger(
			zerolog.New(buf).Level(zerolog.WarnLevel), zerolog.DebugLevel)

		quiet.Func(hooking.HookCtx{Pos: &hooking.HookPos{Name: "x"}})

		Expect(buf.Len()).To(Equal(0))
	})
})
