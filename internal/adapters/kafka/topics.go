package kafka

// Topic definitions for Kafka event streaming
const (
	// Model lifecycle events
	TopicModelTrained        = "models.trained"
	TopicModelActivated      = "models.activated"
	TopicModelTrainingFailed = "models.training_failed"

	// Classification events
	TopicClassificationsRecorded = "classifications.recorded"
)
