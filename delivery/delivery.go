// Package delivery encapsulates the enqueue side of the email/SMS delivery
// pipeline. Queued messages are documents under deliveryQueues/{org}; a
// separate delivery worker observes the queues, performs the actual sends
// and writes success/failure back onto the same documents. Enqueueing also
// publishes a Pub/Sub note so the worker wakes promptly instead of waiting
// for its next poll.
package delivery

import (
	"context"
	"encoding/json"

	log "rinkserver/cloudlog"
	"rinkserver/collections"
	"rinkserver/storage"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
)

// QueueNote is the Pub/Sub payload pointing the worker at a new queue
// document.
type QueueNote struct {
	Organization string `json:"organization"`
	Queue        string `json:"queue"`
	ID           string `json:"id"`
}

// Publisher notifies the delivery worker about new queue documents.
type Publisher interface {
	Notify(ctx context.Context, note QueueNote) error
}

// Queue writes delivery documents and notifies the worker.
type Queue struct {
	db        storage.Store
	publisher Publisher

	newID func() string
}

// NewQueue creates a Queue over db. publisher may be nil, in which case the
// worker relies on its own polling.
func NewQueue(db storage.Store, publisher Publisher) *Queue {
	return &Queue{
		db:        db,
		publisher: publisher,
		newID:     func() string { return uuid.New().String() },
	}
}

// EnqueueEmail queues an email payload for org and returns the queue
// document id.
func (q *Queue) EnqueueEmail(ctx context.Context, org string, payload storage.Doc) (string, error) {
	return q.enqueue(ctx, org, collections.EmailQueueID, payload)
}

// EnqueueSMS queues an SMS payload for org and returns the queue document id.
func (q *Queue) EnqueueSMS(ctx context.Context, org string, payload storage.Doc) (string, error) {
	return q.enqueue(ctx, org, collections.SMSQueueID, payload)
}

func (q *Queue) enqueue(ctx context.Context, org, queue string, payload storage.Doc) (string, error) {
	id := q.newID()
	path := collections.DeliveryDocPath(org, queue, id)
	err := q.db.Set(ctx, path, storage.Doc{collections.PayloadField: payload})
	if err != nil {
		return "", err
	}
	if q.publisher != nil {
		note := QueueNote{Organization: org, Queue: queue, ID: id}
		if err := q.publisher.Notify(ctx, note); err != nil {
			// The queue document is the source of truth; the worker's poll
			// picks it up even when the wake-up note is lost.
			log.Printf("delivery note for %s dropped: %v", path, err)
		}
	}
	return id, nil
}

// pubsubPublisher implements Publisher on a Pub/Sub topic.
type pubsubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher connects to the given project and topic.
func NewPubSubPublisher(ctx context.Context, projectID, topicName string) (Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &pubsubPublisher{topic: client.Topic(topicName)}, nil
}

func (p *pubsubPublisher) Notify(ctx context.Context, note QueueNote) error {
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = result.Get(ctx)
	return err
}
