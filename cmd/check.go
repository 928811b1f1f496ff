package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report participants whose like count disagrees with their like edges",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, _ []string) error {
	log, done, err := newLogger()
	if err != nil {
		return err
	}
	defer done()
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mismatches, err := st.LikeCountMismatches(ctx)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		log.Warn("Like count mismatch",
			zap.Int64("participantId", m.ParticipantID),
			zap.Int64("likeCount", m.LikeCount),
			zap.Int64("edgeCount", m.EdgeCount))
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d participants have inconsistent like counts", len(mismatches))
	}
	log.Info("Like counts consistent")
	return nil
}
