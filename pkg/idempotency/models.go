package idempotency

import "time"

// IdempotencyKey is a stored Idempotency-Key and, once the request completes, its response
type IdempotencyKey struct {
	ID                 string            `bson:"_id" json:"id"`
	Key                string            `bson:"key" json:"key"`
	Scope              string            `bson:"scope,omitempty" json:"scope,omitempty"`
	ServiceID          string            `bson:"serviceId" json:"serviceId"`
	RequestPath        string            `bson:"requestPath" json:"requestPath"`
	RequestMethod      string            `bson:"requestMethod" json:"requestMethod"`
	RequestFingerprint string            `bson:"requestFingerprint" json:"requestFingerprint"`
	LockedAt           *time.Time        `bson:"lockedAt,omitempty" json:"lockedAt,omitempty"`
	ResponseCode       int               `bson:"responseCode,omitempty" json:"responseCode,omitempty"`
	ResponseBody       []byte            `bson:"responseBody,omitempty" json:"responseBody,omitempty"`
	ResponseHeaders    map[string]string `bson:"responseHeaders,omitempty" json:"responseHeaders,omitempty"`
	CreatedAt          time.Time         `bson:"createdAt" json:"createdAt"`
	CompletedAt        *time.Time        `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	ExpiresAt          time.Time         `bson:"expiresAt" json:"expiresAt"`
}

// KeyID builds the storage id of a key. Keys are scoped per service and optionally per caller.
func KeyID(serviceID, scope, key string) string {
	if scope == "" {
		return serviceID + ":" + key
	}
	return serviceID + ":" + scope + ":" + key
}

// IsCompleted returns true if the request has a stored response
func (k *IdempotencyKey) IsCompleted() bool {
	return k.CompletedAt != nil
}

// IsLocked returns true if a request holding this key is still running
func (k *IdempotencyKey) IsLocked() bool {
	return k.LockedAt != nil && k.CompletedAt == nil
}

// Complete records the response and releases the lock
func (k *IdempotencyKey) Complete(code int, body []byte, headers map[string]string) {
	now := time.Now().UTC()
	k.ResponseCode = code
	k.ResponseBody = body
	k.ResponseHeaders = headers
	k.CompletedAt = &now
	k.LockedAt = nil
}

// ProcessedMessage marks a consumed CloudEvent as handled by a consumer group
type ProcessedMessage struct {
	ID            string    `bson:"_id" json:"id"`
	MessageID     string    `bson:"messageId" json:"messageId"`
	Topic         string    `bson:"topic" json:"topic"`
	EventType     string    `bson:"eventType" json:"eventType"`
	ConsumerGroup string    `bson:"consumerGroup" json:"consumerGroup"`
	ServiceID     string    `bson:"serviceId" json:"serviceId"`
	ProcessedAt   time.Time `bson:"processedAt" json:"processedAt"`
	ExpiresAt     time.Time `bson:"expiresAt" json:"expiresAt"`
	CorrelationID string    `bson:"correlationId,omitempty" json:"correlationId,omitempty"`
}

// ProcessedMessageID builds the storage id of a processed message
func ProcessedMessageID(consumerGroup, topic, messageID string) string {
	return consumerGroup + ":" + topic + ":" + messageID
}
