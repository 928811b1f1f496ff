package dynamostore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"zako_server/models"
	"zako_server/store"
)

// AddLike writes the edge and bumps the target's count in one transaction,
// conditioned on the liker's client guard still existing. The returned count
// is read back consistently right after the commit.
func (s *Store) AddLike(ctx context.Context, likerClientID string, likedParticipantID int64) (int64, error) {
	edge, err := attributevalue.MarshalMap(models.LikeEdge{
		LikerClientID:      likerClientID,
		LikedParticipantID: likedParticipantID,
		CreatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal like edge: %w", err)
	}
	err = s.transact(ctx, []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(s.tables.likeEdges),
			Item:                edge,
			ConditionExpression: aws.String("attribute_not_exists(likerClientId)"),
		}},
		{Update: &types.Update{
			TableName:                 aws.String(s.tables.participants),
			Key:                       participantKey(likedParticipantID),
			UpdateExpression:          aws.String("ADD likeCount :one"),
			ConditionExpression:       aws.String("attribute_exists(participantId)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":one": numberAttr(1)},
		}},
		{ConditionCheck: &types.ConditionCheck{
			TableName:           aws.String(s.tables.uniques),
			Key:                 uniqueKey(clientKey(likerClientID)),
			ConditionExpression: aws.String("attribute_exists(uniqueKey)"),
		}},
	})
	if idx, ok := failedCondition(err); ok {
		switch idx {
		case 0:
			return 0, &store.Error{Kind: store.KindUniqueViolation, Constraint: store.ConstraintLikePair, Err: err}
		case 1:
			return 0, store.NotFound("liked participant")
		default:
			return 0, store.NotFoundOn(store.ConstraintLiker, "liker "+likerClientID)
		}
	}
	if err != nil {
		return 0, classify(fmt.Errorf("failed to add like: %w", err))
	}

	p, err := s.ParticipantByID(ctx, likedParticipantID)
	if err != nil {
		return 0, err
	}
	return p.LikeCount, nil
}

func (s *Store) LikedParticipantIDs(ctx context.Context, likerClientID string) ([]int64, error) {
	ids := []int64{}
	if likerClientID == "" {
		return ids, nil
	}
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.likeEdges),
		KeyConditionExpression:    aws.String("likerClientId = :liker"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":liker": stringAttr(likerClientID)},
		ProjectionExpression:      aws.String(likedAttr),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if id, ok := parseNumber(item[likedAttr]); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) LikeEdgesTo(ctx context.Context, participantID int64) (int64, error) {
	return s.queryCount(ctx, s.incomingQuery(participantID))
}

func (s *Store) incomingQuery(participantID int64) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.likeEdges),
		IndexName:                 aws.String(models.LikedParticipantIndex),
		KeyConditionExpression:    aws.String("likedParticipantId = :liked"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":liked": numberAttr(participantID)},
	}
}

// DeleteParticipantByClientID removes the participant, its unique guards, its
// outgoing edges with their decrements and its incoming edges in a single
// transaction when they fit. Larger graphs fall back to deleteInPhases.
// Deleting the client guard also stops new outgoing edges, since AddLike
// checks it.
func (s *Store) DeleteParticipantByClientID(ctx context.Context, clientID string) (store.DeleteResult, error) {
	for attempt := 1; ; attempt++ {
		p, err := s.ParticipantByClientID(ctx, clientID)
		if err != nil {
			return store.DeleteResult{}, err
		}
		outgoing, err := s.outgoingTargets(ctx, clientID)
		if err != nil {
			return store.DeleteResult{}, err
		}
		incoming, err := s.incomingLikers(ctx, p.ID)
		if err != nil {
			return store.DeleteResult{}, err
		}

		plan := s.deletionPlan(p, clientID, outgoing, incoming)
		if len(plan.items) > maxTransactItems || attempt > deleteAttempts {
			return s.deleteInPhases(ctx, p, clientID)
		}

		err = s.transact(ctx, plan.items)
		idx, failed := failedCondition(err)
		switch {
		case err == nil:
			result := store.DeleteResult{ParticipantID: p.ID, OutgoingEdges: plan.outgoing, IncomingEdges: plan.incoming}
			s.sweepAfterCommit(ctx, &result, clientID)
			return result, nil
		case failed && idx == 0:
			return store.DeleteResult{}, store.NotFound("participant by client id")
		case failed || transactionConflict(err):
			// an edge or count moved since it was read; read again
			s.log.Debug("Retrying participant deletion", zap.Int64("participantId", p.ID), zap.Int("attempt", attempt))
		default:
			return store.DeleteResult{}, classify(fmt.Errorf("failed to delete participant: %w", err))
		}
	}
}

type deletion struct {
	items    []types.TransactWriteItem
	outgoing int64
	incoming int64
}

// deletionPlan lays out one transaction for the whole deletion. The participant
// delete comes first so a failed condition at index 0 means it is already gone.
// A self edge shows up in both directions and is written once.
func (s *Store) deletionPlan(p *models.Participant, clientID string, outgoing []int64, incomingLikers []string) deletion {
	plan := deletion{items: []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           aws.String(s.tables.participants),
			Key:                 participantKey(p.ID),
			ConditionExpression: aws.String("attribute_exists(participantId)"),
		}},
		{Delete: &types.Delete{TableName: aws.String(s.tables.uniques), Key: uniqueKey(sessionKey(p.SessionToken))}},
		{Delete: &types.Delete{TableName: aws.String(s.tables.uniques), Key: uniqueKey(clientKey(clientID))}},
	}}
	for _, target := range outgoing {
		plan.items = append(plan.items, s.edgeRemoval(clientID, target, p.ID)...)
		plan.outgoing++
	}
	for _, liker := range incomingLikers {
		if liker == clientID {
			continue
		}
		plan.items = append(plan.items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(s.tables.likeEdges),
			Key:       edgeKey(liker, p.ID),
		}})
		plan.incoming++
	}
	return plan
}

// deleteInPhases handles graphs too large for one transaction. Deleting the
// participant with its guards is the commit point: afterwards the deletion has
// happened, and the edge sweeps only tidy up, so their failures are logged.
func (s *Store) deleteInPhases(ctx context.Context, p *models.Participant, clientID string) (store.DeleteResult, error) {
	err := s.transact(ctx, []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           aws.String(s.tables.participants),
			Key:                 participantKey(p.ID),
			ConditionExpression: aws.String("attribute_exists(participantId)"),
		}},
		{Delete: &types.Delete{TableName: aws.String(s.tables.uniques), Key: uniqueKey(sessionKey(p.SessionToken))}},
		{Delete: &types.Delete{TableName: aws.String(s.tables.uniques), Key: uniqueKey(clientKey(clientID))}},
	})
	if _, ok := failedCondition(err); ok {
		return store.DeleteResult{}, store.NotFound("participant by client id")
	}
	if err != nil {
		return store.DeleteResult{}, classify(fmt.Errorf("failed to delete participant: %w", err))
	}

	result := store.DeleteResult{ParticipantID: p.ID}
	s.sweepAfterCommit(ctx, &result, clientID)
	return result, nil
}

// sweepAfterCommit removes edges left behind once the participant is gone:
// everything after a phased commit, or edges written between the reads and the
// transaction otherwise. No new edge can reference the participant by now.
func (s *Store) sweepAfterCommit(ctx context.Context, result *store.DeleteResult, clientID string) {
	outgoing, err := s.deleteOutgoing(ctx, clientID, result.ParticipantID)
	result.OutgoingEdges += outgoing
	if err != nil {
		s.log.Warn("Outgoing like edges left after deletion", zap.Int64("participantId", result.ParticipantID), zap.Error(err))
	}
	incoming, err := s.deleteIncoming(ctx, clientID, result.ParticipantID)
	result.IncomingEdges += incoming
	if err != nil {
		s.log.Warn("Incoming like edges left after deletion", zap.Int64("participantId", result.ParticipantID), zap.Error(err))
	}

	s.log.Info("Participant deleted",
		zap.Int64("participantId", result.ParticipantID),
		zap.Int64("outgoingEdges", result.OutgoingEdges),
		zap.Int64("incomingEdges", result.IncomingEdges))
}

func (s *Store) outgoingTargets(ctx context.Context, likerClientID string) ([]int64, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.likeEdges),
		KeyConditionExpression:    aws.String("likerClientId = :liker"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":liker": stringAttr(likerClientID)},
		ProjectionExpression:      aws.String(likedAttr),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	targets := make([]int64, 0, len(items))
	for _, item := range items {
		if id, ok := parseNumber(item[likedAttr]); ok {
			targets = append(targets, id)
		}
	}
	return targets, nil
}

// incomingLikers reads the liked-participant index, which is only eventually
// consistent; sweepAfterCommit picks up whatever it has not caught up with.
func (s *Store) incomingLikers(ctx context.Context, participantID int64) ([]string, error) {
	items, err := s.queryAll(ctx, s.incomingQuery(participantID))
	if err != nil {
		return nil, err
	}
	likers := make([]string, 0, len(items))
	for _, item := range items {
		if v, ok := item[likerAttr].(*types.AttributeValueMemberS); ok {
			likers = append(likers, v.Value)
		}
	}
	return likers, nil
}

// deleteIncoming drops the edges pointing at a deleted participant. There is
// no count left to decrement.
func (s *Store) deleteIncoming(ctx context.Context, clientID string, participantID int64) (int64, error) {
	likers, err := s.incomingLikers(ctx, participantID)
	if err != nil {
		return 0, err
	}
	requests := make([]types.WriteRequest, 0, len(likers))
	for _, liker := range likers {
		if liker == clientID {
			continue
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: edgeKey(liker, participantID)}})
	}
	if err := s.batchWriteItems(ctx, s.tables.likeEdges, requests); err != nil {
		return 0, err
	}
	return int64(len(requests)), nil
}

// deleteOutgoing removes every edge held by likerClientID, decrementing each
// target in the same transaction as its edge.
func (s *Store) deleteOutgoing(ctx context.Context, likerClientID string, selfID int64) (int64, error) {
	targets, err := s.outgoingTargets(ctx, likerClientID)
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, w := range chunk(len(targets), edgeChunkSize) {
		batch := targets[w[0]:w[1]]
		tx := make([]types.TransactWriteItem, 0, 2*len(batch))
		for _, target := range batch {
			tx = append(tx, s.edgeRemoval(likerClientID, target, selfID)...)
		}
		err := s.transact(ctx, tx)
		if err == nil {
			removed += int64(len(batch))
			continue
		}
		if _, ok := failedCondition(err); !ok {
			return removed, classify(fmt.Errorf("failed to delete like edges: %w", err))
		}
		// something in the chunk moved underneath us; settle edge by edge
		for _, target := range batch {
			ok, err := s.removeEdge(ctx, likerClientID, target, selfID)
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *Store) edgeRemoval(likerClientID string, target, selfID int64) []types.TransactWriteItem {
	items := []types.TransactWriteItem{{Delete: &types.Delete{
		TableName:           aws.String(s.tables.likeEdges),
		Key:                 edgeKey(likerClientID, target),
		ConditionExpression: aws.String("attribute_exists(likerClientId)"),
	}}}
	if target == selfID {
		return items
	}
	return append(items, types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(s.tables.participants),
		Key:                       participantKey(target),
		UpdateExpression:          aws.String("ADD likeCount :minus"),
		ConditionExpression:       aws.String("attribute_exists(participantId) AND likeCount > :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":minus": numberAttr(-1), ":zero": numberAttr(0)},
	}})
}

// removeEdge deletes one edge. It reports false when the edge was already gone.
// When the target no longer exists the edge is dropped without a decrement.
func (s *Store) removeEdge(ctx context.Context, likerClientID string, target, selfID int64) (bool, error) {
	err := s.transact(ctx, s.edgeRemoval(likerClientID, target, selfID))
	idx, failed := failedCondition(err)
	switch {
	case err == nil:
		return true, nil
	case failed && idx == 0:
		return false, nil
	case failed:
		_, err = s.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:           aws.String(s.tables.likeEdges),
			Key:                 edgeKey(likerClientID, target),
			ConditionExpression: aws.String("attribute_exists(likerClientId)"),
		})
		if isConditionFailed(err) {
			return false, nil
		}
		if err != nil {
			return false, classify(fmt.Errorf("failed to delete like edge: %w", err))
		}
		return true, nil
	default:
		return false, classify(fmt.Errorf("failed to delete like edge: %w", err))
	}
}
