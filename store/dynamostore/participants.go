package dynamostore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"zako_server/models"
	"zako_server/store"
)

func (s *Store) ParticipantByID(ctx context.Context, id int64) (*models.Participant, error) {
	item, err := s.getItem(ctx, s.tables.participants, participantKey(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, store.NotFound("participant by id")
	}
	var p models.Participant
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
	}
	return &p, nil
}

func (s *Store) participantByUnique(ctx context.Context, what, key string) (*models.Participant, error) {
	item, err := s.getItem(ctx, s.tables.uniques, uniqueKey(key))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, store.NotFound(what)
	}
	var u uniqueItem
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unique: %w", err)
	}
	p, err := s.ParticipantByID(ctx, u.ParticipantID)
	if store.IsNotFound(err) {
		// guard left behind by an interrupted delete
		return nil, store.NotFound(what)
	}
	return p, err
}

func (s *Store) ParticipantByClientID(ctx context.Context, clientID string) (*models.Participant, error) {
	if clientID == "" {
		return nil, store.NotFound("participant by client id")
	}
	return s.participantByUnique(ctx, "participant by client id", clientKey(clientID))
}

func (s *Store) ParticipantBySessionToken(ctx context.Context, token string) (*models.Participant, error) {
	if token == "" {
		return nil, store.NotFound("participant by session token")
	}
	return s.participantByUnique(ctx, "participant by session token", sessionKey(token))
}

// nextParticipantID atomically bumps the participant sequence.
func (s *Store) nextParticipantID(ctx context.Context) (int64, error) {
	output, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.counters),
		Key:                       map[string]types.AttributeValue{counterNameAttr: stringAttr(participantCounter)},
		UpdateExpression:          aws.String("ADD #seq :one"),
		ExpressionAttributeNames:  map[string]string{"#seq": "seq"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": numberAttr(1)},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, classify(fmt.Errorf("failed to allocate participant id: %w", err))
	}
	var c counterItem
	if err := attributevalue.UnmarshalMap(output.Attributes, &c); err != nil {
		return 0, fmt.Errorf("failed to unmarshal counter: %w", err)
	}
	return c.Seq, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.DisplayName == "" {
		p.DisplayName = models.DefaultDisplayName
	}
	id, err := s.nextParticipantID(ctx)
	if err != nil {
		return err
	}
	p.ID = id
	p.LikeCount = 0

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}
	guard := func(key string) (types.TransactWriteItem, error) {
		u, err := attributevalue.MarshalMap(uniqueItem{UniqueKey: key, ParticipantID: id})
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("failed to marshal unique: %w", err)
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(s.tables.uniques),
			Item:                u,
			ConditionExpression: aws.String("attribute_not_exists(uniqueKey)"),
		}}, nil
	}

	items := []types.TransactWriteItem{{Put: &types.Put{
		TableName:           aws.String(s.tables.participants),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(participantId)"),
	}}}
	sessionGuard, err := guard(sessionKey(p.SessionToken))
	if err != nil {
		return err
	}
	items = append(items, sessionGuard)
	if p.ClientID != "" {
		clientGuard, err := guard(clientKey(p.ClientID))
		if err != nil {
			return err
		}
		items = append(items, clientGuard)
	}

	err = s.transact(ctx, items)
	if idx, ok := failedCondition(err); ok {
		switch idx {
		case 1:
			return &store.Error{Kind: store.KindUniqueViolation, Constraint: store.ConstraintSessionToken, Err: err}
		case 2:
			return &store.Error{Kind: store.KindUniqueViolation, Constraint: store.ConstraintClientID, Err: err}
		}
	}
	if err != nil {
		return classify(fmt.Errorf("failed to create participant: %w", err))
	}
	s.log.Debug("Participant stored", zap.Int64("participantId", id))
	return nil
}

func (s *Store) RebindSessionToken(ctx context.Context, participantID int64, token string) error {
	p, err := s.ParticipantByID(ctx, participantID)
	if err != nil {
		return err
	}
	if p.SessionToken == token {
		return nil
	}
	guard, err := attributevalue.MarshalMap(uniqueItem{UniqueKey: sessionKey(token), ParticipantID: participantID})
	if err != nil {
		return fmt.Errorf("failed to marshal unique: %w", err)
	}
	err = s.transact(ctx, []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(s.tables.uniques),
			Item:                guard,
			ConditionExpression: aws.String("attribute_not_exists(uniqueKey)"),
		}},
		{Update: &types.Update{
			TableName:                 aws.String(s.tables.participants),
			Key:                       participantKey(participantID),
			UpdateExpression:          aws.String("SET sessionToken = :new"),
			ConditionExpression:       aws.String("sessionToken = :old"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":new": stringAttr(token), ":old": stringAttr(p.SessionToken)},
		}},
		{Delete: &types.Delete{
			TableName: aws.String(s.tables.uniques),
			Key:       uniqueKey(sessionKey(p.SessionToken)),
		}},
	})
	if idx, ok := failedCondition(err); ok {
		if idx == 0 {
			return &store.Error{Kind: store.KindUniqueViolation, Constraint: store.ConstraintSessionToken, Err: err}
		}
		return store.NotFound("participant to rebind")
	}
	if err != nil {
		return classify(fmt.Errorf("failed to rebind session token: %w", err))
	}
	return nil
}

func (s *Store) UpdateDisplayName(ctx context.Context, participantID int64, name string) error {
	return s.updateParticipant(ctx, participantID, "SET displayName = :v", nil, map[string]types.AttributeValue{":v": stringAttr(name)})
}

func (s *Store) UpdateComment(ctx context.Context, participantID int64, comment string) error {
	names := map[string]string{"#c": "comment"}
	if comment == "" {
		return s.updateParticipant(ctx, participantID, "REMOVE #c", names, nil)
	}
	return s.updateParticipant(ctx, participantID, "SET #c = :v", names, map[string]types.AttributeValue{":v": stringAttr(comment)})
}

func (s *Store) updateParticipant(ctx context.Context, participantID int64, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.participants),
		Key:                       participantKey(participantID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(participantId)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	_, err := s.Client.UpdateItem(ctx, input)
	if isConditionFailed(err) {
		return store.NotFound("participant")
	}
	if err != nil {
		return classify(fmt.Errorf("failed to update participant %d: %w", participantID, err))
	}
	return nil
}

func (s *Store) allParticipants(ctx context.Context) ([]models.Participant, error) {
	items, err := s.scanAll(ctx, &dynamodb.ScanInput{
		TableName:      aws.String(s.tables.participants),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	participants := []models.Participant{}
	if err := attributevalue.UnmarshalListOfMaps(items, &participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	return participants, nil
}

func (s *Store) ListParticipants(ctx context.Context, limit int) ([]models.Participant, error) {
	participants, err := s.allParticipants(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].CreatedAt.Equal(participants[j].CreatedAt) {
			return participants[i].CreatedAt.After(participants[j].CreatedAt)
		}
		return participants[i].ID > participants[j].ID
	})
	if limit > 0 && len(participants) > limit {
		participants = participants[:limit]
	}
	return participants, nil
}

func (s *Store) CountParticipants(ctx context.Context) (int64, error) {
	var total int64
	paginator := dynamodb.NewScanPaginator(s.Client, &dynamodb.ScanInput{
		TableName: aws.String(s.tables.participants),
		Select:    types.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, classify(fmt.Errorf("failed to count participants: %w", err))
		}
		total += int64(page.Count)
	}
	return total, nil
}

func (s *Store) LikeCountMismatches(ctx context.Context) ([]models.CountMismatch, error) {
	participants, err := s.allParticipants(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })
	mismatches := []models.CountMismatch{}
	for _, p := range participants {
		edges, err := s.LikeEdgesTo(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if edges != p.LikeCount {
			mismatches = append(mismatches, models.CountMismatch{ParticipantID: p.ID, LikeCount: p.LikeCount, EdgeCount: edges})
		}
	}
	return mismatches, nil
}

func parseNumber(av types.AttributeValue) (int64, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	return v, err == nil
}
