package config

// QueueKeyStruct holds the Redis key names used by the essay review queue.
type QueueKeyStruct struct {
	ReviewReadyList  string
	ReviewDelayedSet string
	ReviewDeadList   string
}

var QueueKey = &QueueKeyStruct{
	ReviewReadyList:  "review_essay_queue",
	ReviewDelayedSet: "review_essay_queue:delayed",
	ReviewDeadList:   "review_essay_queue:dead",
}
