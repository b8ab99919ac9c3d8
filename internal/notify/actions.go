package notify

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/yanizio/openaccount/internal/config"
	"github.com/yanizio/openaccount/internal/form"
	"github.com/yanizio/openaccount/internal/submission"
)

// Deps carries what action constructors may need.
type Deps struct {
	Kafka config.Kafka
	Log   *zap.SugaredLogger
}

// FromActions builds the notifier chain declared by a form definition.
//
//	actions:
//	  - type: log
//	  - type: kafka
//	    topic: account.opened   # optional, overrides kafka.topic
//
// An empty list, or one whose every action is skipped, yields Log.  A kafka
// action is skipped with a warning when no brokers are configured, as is any
// unknown type.
// The returned closers must be closed on shutdown.
func FromActions(actions []form.ActionDef, d Deps) (submission.Notifier, []io.Closer, error) {
	log := d.Log
	if log == nil {
		log = zap.S()
	}
	if len(actions) == 0 {
		return Log{}, nil, nil
	}

	var (
		chain   Multi
		closers []io.Closer
	)
	for _, ac := range actions {
		switch ac.Type {
		case "log":
			chain = append(chain, Log{})

		case "kafka":
			if len(d.Kafka.Brokers) == 0 {
				log.Warnw("kafka action skipped, kafka.brokers not configured")
				continue
			}
			topic := d.Kafka.Topic
			if t, ok := ac.Params["topic"].(string); ok && t != "" {
				topic = t
			}
			k, err := NewKafka(KafkaOptions{Brokers: d.Kafka.Brokers, Topic: topic, Log: log})
			if err != nil {
				for _, c := range closers {
					_ = c.Close()
				}
				return nil, nil, fmt.Errorf("kafka action: %w", err)
			}
			chain = append(chain, k)
			closers = append(closers, k)

		default:
			log.Warnw("form action skipped, unsupported type", "action", ac.Type)
		}
	}

	switch len(chain) {
	case 0:
		return Log{}, closers, nil
	case 1:
		return chain[0], closers, nil
	default:
		return chain, closers, nil
	}
}
