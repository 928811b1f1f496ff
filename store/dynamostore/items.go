package dynamostore

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	uniqueKeyAttr     = "uniqueKey"
	participantIDAttr = "participantId"
	counterNameAttr   = "counterName"
	likerAttr         = "likerClientId"
	likedAttr         = "likedParticipantId"

	participantCounter = "participants"

	// Two items per edge plus headroom, under the 100 item transaction limit.
	edgeChunkSize = 25
	maxBatchSize  = 25

	maxTransactItems = 100
	deleteAttempts   = 3
)

// uniqueItem reserves a session token or client identifier for one participant.
type uniqueItem struct {
	UniqueKey     string `dynamodbav:"uniqueKey"`     // ✅ Partition Key
	ParticipantID int64  `dynamodbav:"participantId"`
}

type counterItem struct {
	CounterName string `dynamodbav:"counterName"`
	Seq         int64  `dynamodbav:"seq"`
}

func sessionKey(token string) string {
	return "session#" + token
}

func clientKey(clientID string) string {
	return "client#" + clientID
}

func numberAttr(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func stringAttr(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func participantKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{participantIDAttr: numberAttr(id)}
}

func uniqueKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{uniqueKeyAttr: stringAttr(key)}
}

func edgeKey(liker string, liked int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		likerAttr: stringAttr(liker),
		likedAttr: numberAttr(liked),
	}
}

// chunk splits n items into [start, end) windows of at most size.
func chunk(n, size int) [][2]int {
	var out [][2]int
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{i, end})
	}
	return out
}
