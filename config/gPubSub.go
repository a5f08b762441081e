package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// RuleExecutionMessage is the audit event published for every transformation
// rule invocation during a pricelist upload.
type RuleExecutionMessage struct {
	SupplierId      string    `json:"supplier_id"`
	UploadId        string    `json:"upload_id"`
	RuleId          int       `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	RuleType        string    `json:"rule_type"`
	Passed          bool      `json:"passed"`
	Blocked         bool      `json:"blocked"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	RowsAffected    int       `json:"rows_affected"`
	PublishedAt     time.Time `json:"published_at"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Application Default Credentials (service account or GOOGLE_APPLICATION_CREDENTIALS).
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}

	pubsubClientMu.Lock()
	if pubsubClient == nil {
		pubsubClient = c
	} else {
		// Another goroutine won the race; close ours.
		_ = c.Close()
	}
	c2 := pubsubClient
	pubsubClientMu.Unlock()

	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return c2, nil
}

func CreateTopicIfNotExists(c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	ctx := context.Background()
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

var (
	ruleExecTopic   *pubsub.Topic
	ruleExecTopicMu sync.Mutex
)

// getRuleExecutionTopic resolves the audit topic once, creating it when it
// does not exist yet.
func getRuleExecutionTopic(client *pubsub.Client) (*pubsub.Topic, error) {
	ruleExecTopicMu.Lock()
	defer ruleExecTopicMu.Unlock()
	if ruleExecTopic != nil {
		return ruleExecTopic, nil
	}

	topicName := os.Getenv("PUBSUB_RULE_EXECUTION_TOPIC")
	if topicName == "" {
		topicName = "rule-executions"
	}
	t, err := CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return nil, err
	}
	ruleExecTopic = t
	return t, nil
}

// PublishRuleExecution publishes an audit event for one rule invocation.
// Best-effort: callers treat any error as non-fatal.
func PublishRuleExecution(ctx context.Context, msg RuleExecutionMessage) (string, error) {
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	t, err := getRuleExecutionTopic(client)
	if err != nil {
		return "", err
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
	})

	return result.Get(ctx)
}
