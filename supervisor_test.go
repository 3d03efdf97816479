package artemis_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sorenbk/artemis-go"
	"github.com/sorenbk/artemis-go/transport"
	"github.com/sorenbk/artemis-go/transport/transporttest"
)

var _ = Describe("Recovery supervisor", func() {
	var (
		adapter *transporttest.Adapter
		client  *artemis.Client
	)

	BeforeEach(func() {
		adapter = transporttest.New()
		endpoints := artemis.Endpoints{{Scheme: "amqp", Host: "broker", Port: 5672}}
		policy, err := artemis.NewConstant(5*time.Millisecond, artemis.Unbounded, true)
		Expect(err).NotTo(HaveOccurred())

		client, err = artemis.NewClient(adapter, endpoints, policy, nil)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(client.Start(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(client.Close()).To(Succeed())
	})

	It("re-attaches a producer and a consumer after a simulated peer close", func() {
		ctx := context.Background()
		producer, err := client.NewProducer(ctx, artemis.ProducerConfig{Address: "orders"})
		Expect(err).NotTo(HaveOccurred())
		consumer, err := client.NewConsumer(ctx, artemis.ConsumerConfig{Address: "orders", PrefetchCount: 10})
		Expect(err).NotTo(HaveOccurred())

		Eventually(producer.State).Should(Equal(artemis.StateAttached))
		Eventually(consumer.State).Should(Equal(artemis.StateAttached))

		conns := adapter.Conns()
		Expect(conns).To(HaveLen(1))
		conns[0].SimulatePeerClose(errors.New("broker restarted"))

		Eventually(producer.State, time.Second).Should(Equal(artemis.StateAttached))
		Eventually(consumer.State, time.Second).Should(Equal(artemis.StateAttached))
		Expect(adapter.Conns()).To(HaveLen(2))
	})

	It("parks SendAsync across a reconnect and completes once resumed", func() {
		ctx := context.Background()
		producer, err := client.NewProducer(ctx, artemis.ProducerConfig{Address: "orders"})
		Expect(err).NotTo(HaveOccurred())
		Eventually(producer.State).Should(Equal(artemis.StateAttached))

		adapter.Conns()[0].SimulatePeerClose(errors.New("dropped"))

		msg, err := artemis.NewMessage("payload")
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() {
			_, sendErr := producer.SendAsync(context.Background(), msg, nil)
			done <- sendErr
		}()

		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("never delivers a successful send against a detached link", func() {
		ctx := context.Background()
		producer, err := client.NewProducer(ctx, artemis.ProducerConfig{Address: "orders"})
		Expect(err).NotTo(HaveOccurred())
		Eventually(producer.State).Should(Equal(artemis.StateAttached))

		staleSender := adapter.Conns()[0].Sessions()[0].Senders()[0]
		adapter.Conns()[0].SimulatePeerClose(errors.New("dropped"))

		_, sendErr := staleSender.Send(context.Background(), "late", transport.DeliveryMetadata{})
		Expect(sendErr).To(MatchError(transporttest.ErrLinkClosed))
	})

	It("buffers prefetched deliveries and drains them in FIFO order even while suspended", func() {
		ctx := context.Background()
		consumer, err := client.NewConsumer(ctx, artemis.ConsumerConfig{Address: "orders", PrefetchCount: 4})
		Expect(err).NotTo(HaveOccurred())
		Eventually(consumer.State).Should(Equal(artemis.StateAttached))

		receiver := adapter.Conns()[0].Sessions()[0].Receivers()[0]
		Expect(receiver.Push([]byte("1"), "first")).To(BeTrue())
		Expect(receiver.Push([]byte("2"), "second")).To(BeTrue())

		adapter.Conns()[0].SimulatePeerClose(errors.New("dropped"))

		d1, err := consumer.ReceiveAsync(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(d1.Body).To(Equal("first"))

		d2, err := consumer.ReceiveAsync(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(d2.Body).To(Equal("second"))

		Eventually(consumer.State, time.Second).Should(Equal(artemis.StateAttached))
	})

	It("accepts a buffered delivery even after its owning link has been replaced", func() {
		ctx := context.Background()
		consumer, err := client.NewConsumer(ctx, artemis.ConsumerConfig{Address: "orders", PrefetchCount: 4})
		Expect(err).NotTo(HaveOccurred())
		Eventually(consumer.State).Should(Equal(artemis.StateAttached))

		receiver := adapter.Conns()[0].Sessions()[0].Receivers()[0]
		Expect(receiver.Push([]byte("1"), "buffered")).To(BeTrue())

		adapter.Conns()[0].SimulatePeerClose(errors.New("dropped"))
		Eventually(consumer.State, time.Second).Should(Equal(artemis.StateAttached))

		d, err := consumer.ReceiveAsync(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Body).To(Equal("buffered"))

		Expect(consumer.AcceptAsync(ctx, d)).To(Succeed())
	})
})
