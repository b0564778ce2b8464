package simulation

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/karma/config"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/karma"
	"github.com/sarchlab/karma/radio"
	"github.com/sarchlab/karma/sensor"
	"github.com/sarchlab/karma/tracing"
)

var _ = Describe("Simulation", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	fastRadio := radio.MakeBuilder().
		WithByteTime(time.Millisecond).
		WithoutDataGenerator()

	It("should run requests against its radios", func() {
		s := MakeBuilder().WithRadioBuilder(fastRadio).Build()
		done := s.Go(ctx)

		k := s.NewRadio()
		f, err := k.Command(radio.NewInit())
		Expect(err).NotTo(HaveOccurred())

		res, err := executor.SpawnHandle[karma.Result[radio.Output]](
			s.Spawner(), f).Wait(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Msg.Kind).To(Equal(radio.InitDone))

		Expect(s.DataRecorder()).To(BeNil())
		Expect(s.Monitor()).To(BeNil())

		s.Terminate()
		Eventually(done).Should(Receive(BeNil()))
		Expect(k.Device().Err()).To(MatchError(radio.ErrDisconnected))
	})

	It("should bound the history", func() {
		s := MakeBuilder().
			WithRadioBuilder(fastRadio).
			WithHistoryCapacity(2).
			Build()
		defer s.Terminate()
		s.Go(ctx)

		k := s.NewRadio()
		for _, cmd := range []radio.Input{
			radio.NewInit(), radio.NewSwitchToTransmit(), radio.NewSwitchToReceive(),
		} {
			f, err := k.Command(cmd)
			Expect(err).NotTo(HaveOccurred())
			_, err = executor.SpawnHandle[karma.Result[radio.Output]](
				s.Spawner(), f).Wait(ctx)
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(k.History().Len()).To(Equal(2))
		Expect(k.History().Evicted()).To(BeNumerically(">", 0))
	})

	It("should trace tasks and peripherals", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace")
		s := MakeBuilder().
			WithRadioBuilder(fastRadio).
			WithTracing(path).
			Build()
		s.Go(ctx)

		k := s.NewRadio()
		f, err := k.Command(radio.NewInit())
		Expect(err).NotTo(HaveOccurred())
		_, err = executor.SpawnHandle[karma.Result[radio.Output]](
			s.Spawner(), f).Wait(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Tracer().IsTracing()).To(BeTrue())
		s.Terminate()

		db, err := sql.Open("sqlite3", path+".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var n int
		Expect(db.QueryRow(
			"SELECT COUNT(*) FROM " + tracing.PeripheralEventTable).Scan(&n)).
			To(Succeed())
		Expect(n).To(BeNumerically(">", 0))

		Expect(db.QueryRow(
			"SELECT COUNT(*) FROM " + tracing.PollTable).Scan(&n)).
			To(Succeed())
		Expect(n).To(BeNumerically(">", 0))
	})

	It("should read sensors", func() {
		s := MakeBuilder().
			WithSensorBuilder(sensor.MakeBuilder().WithoutMeasuring()).
			WithSeed(1).
			Build()
		defer s.Terminate()
		s.Go(ctx)

		sn := s.NewSensor()
		f, ok := sn.Read()
		Expect(ok).To(BeTrue())

		h := executor.SpawnHandle[[]sensor.Temperature](s.Spawner(), f)
		sn.Record(21.5)

		temps, err := h.Wait(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(temps).To(Equal([]sensor.Temperature{21.5}))
	})

	It("should serve the monitor", func() {
		s := MakeBuilder().WithMonitoring().Build()
		defer s.Terminate()

		Expect(s.MonitorURL()).To(HavePrefix("http://localhost:"))
		Expect(s.Monitor()).NotTo(BeNil())
	})

	It("should build from a configuration", func() {
		cfg := config.Default()
		cfg.QueueCapacity = 1
		cfg.Radio.NoDataGenerator = true
		cfg.Radio.ByteTimeMS = 1

		s := MakeBuilder().WithConfig(cfg).Build()
		defer s.Terminate()

		s.Spawner().Spawn(future.Done(future.Unit{}))
		Expect(func() {
			s.Spawner().Spawn(future.Done(future.Unit{}))
		}).To(PanicWith(executor.ErrQueueFull))
	})

	It("should reject a port without monitoring", func() {
		Expect(func() {
			MakeBuilder().WithMonitorPort(8080).Build()
		}).To(Panic())
	})
})
