package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/luca-patrignani/flow-lottery/consensus"
	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

var actions = []string{"Join", "Leave", "Trigger", "Keep winning", "Status", "Pass"}

// inputAction asks the local player what to do in its turn and returns the
// signed action, or nil to pass.
func inputAction(lm *lottery.LotteryManager, node *consensus.ConsensusNode, myRank int, blocks int) (*consensus.Action, error) {
	area, _ := pterm.DefaultArea.Start()
	defer area.Stop()
	for {
		selected, _ := pterm.DefaultInteractiveSelect.WithDefaultText("Select your next action").WithOptions(actions).Show()
		var payload lottery.Action
		switch selected {
		case "Join":
			rate, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("Enter your flow rate per second").Show()
			amount, err := lottery.ParseAmount(rate)
			if err != nil {
				pterm.Error.Println(err.Error())
				continue
			}
			payload = lm.ActionEnter(amount)
		case "Leave":
			payload = lm.ActionLeave()
		case "Trigger":
			payload = lm.ActionTrigger()
		case "Keep winning":
			payload = lm.ActionKeepWinning()
		case "Status":
			printStatus(lm, blocks)
			continue
		case "Pass":
			return nil, nil
		default:
			return nil, errors.New("unknown action " + selected)
		}
		if err := lm.Validate(payload); err != nil {
			pterm.Error.Printfln("Invalid action: %s", err.Error())
			continue
		}
		action, err := consensus.MakeAction(myRank, payload)
		if err != nil {
			return nil, err
		}
		if err := action.Sign(node.GetPriv()); err != nil {
			return nil, err
		}
		return &action, nil
	}
}

func getDecisionPanel(d consensus.Decision, names []string) pterm.Panel {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	o := d.Outcome
	var s string
	switch o.Action {
	case lottery.ActionEnter:
		s = pterm.Sprintfln("%s joined the pool", o.PlayerID)
	case lottery.ActionLeave:
		s = pterm.Sprintfln("%s left the pool", o.PlayerID)
	case lottery.ActionTrigger:
		s = pterm.Sprintfln("%s triggered a draw, %s harvested", o.PlayerID, o.Harvested)
		if o.Skipped {
			s += pterm.Sprintfln("%s spent an ignore token", o.Winner)
		}
	case lottery.ActionKeepWinning:
		s = pterm.Sprintfln("%s bought an ignore token", o.PlayerID)
	}
	if !o.Burned.IsZero() {
		s += pterm.Sprintfln("Burned: %s", o.Burned)
	}
	if o.WinnerChanged() {
		s += pterm.Sprintfln("New winner: %s", pterm.LightCyan(winnerName(o.Winner)))
	}
	title := "|LAST ACTION|"
	if d.Proposer >= 0 && d.Proposer < len(names) {
		title = fmt.Sprintf("|LAST ACTION BY %s|", names[d.Proposer])
	}
	return pterm.Panel{Data: pbox.WithTitle(pterm.LightYellow(title)).WithTitleTopCenter().Sprint(s)}
}

func winnerName(id lottery.PlayerID) string {
	if id == "" {
		return "nobody"
	}
	return string(id)
}

func printStatus(lm *lottery.LotteryManager, blocks int, additionalPanel ...pterm.Panel) {
	pool := lm.Pool
	winner := "nobody"
	if w, ok := pool.CurrentWinner(); ok {
		winner = string(w.ID)
	}
	now := time.Now()
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	poolInfo := pbox.WithTitle(pterm.LightGreen("|POOL|")).WithTitleTopLeft().Sprintf(
		"Winner: %s\nIgnore tokens: %d\nAccrued: %s\nHarvested: %s\nBurned: %s\nBlocks: %d",
		pterm.LightCyan(winner), pool.IgnoreTokens(), pool.Accrued(now), pool.TotalHarvested(), pool.TotalBurned(), blocks,
	)

	data := pterm.TableData{{"Player", "Flow rate", "Joined"}}
	for _, p := range pool.Players() {
		name := string(p.ID)
		if p.ID == lm.LocalPlayer() {
			name = pterm.LightGreen(name)
		}
		data = append(data, []string{name, p.FlowRate.String(), p.JoinedAt.Local().Format(time.TimeOnly)})
	}
	players, _ := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()

	dashboard := []pterm.Panel{{Data: poolInfo}}
	dashboard = append(dashboard, additionalPanel...)
	pterm.DefaultPanel.WithPanels([][]pterm.Panel{
		dashboard,
		{{Data: players}},
	}).Render()
}
