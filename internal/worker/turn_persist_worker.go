package worker

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"vextral/internal/model"
)

// TurnWriter persists one chat turn. Implemented by the chat turn repository.
type TurnWriter interface {
	Create(turn *model.ChatTurn) error
}

// TurnPersistWorker drains the turn queue and writes each turn to MySQL.
// Malformed payloads are dropped; write failures are requeued once so a
// transient database hiccup does not lose history.
type TurnPersistWorker struct {
	conn      *amqp.Connection
	queueName string
	turns     TurnWriter

	ch *amqp.Channel
}

func NewTurnPersistWorker(conn *amqp.Connection, queueName string, turns TurnWriter) *TurnPersistWorker {
	return &TurnPersistWorker{
		conn:      conn,
		queueName: queueName,
		turns:     turns,
	}
}

// Start consumes until ctx is cancelled. It returns the startup error if the
// channel or consumer could not be established.
func (w *TurnPersistWorker) Start(ctx context.Context) error {
	ch, err := w.conn.Channel()
	if err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		return err
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}
	w.ch = ch

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Printf("[worker] turn queue channel closed")
					return
				}
				w.handle(d)
			}
		}
	}()

	log.Printf("[worker] consuming turn persist queue %q", w.queueName)
	return nil
}

// Close stops the consumer. In-flight deliveries that were not acked are
// redelivered on the next start.
func (w *TurnPersistWorker) Close() {
	if w.ch != nil {
		_ = w.ch.Close()
	}
}

func (w *TurnPersistWorker) handle(d amqp.Delivery) {
	var turn model.ChatTurn
	if err := json.Unmarshal(d.Body, &turn); err != nil {
		log.Printf("[worker] drop malformed turn payload: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.turns.Create(&turn); err != nil {
		log.Printf("[worker] persist turn %s failed: %v", turn.ID, err)
		// Requeue unless this delivery already failed once.
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}
