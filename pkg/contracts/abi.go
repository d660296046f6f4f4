package contracts

// Event names of the battle contract
const (
	EventDuelInitiated   = "DuelInitiated"
	EventDuelJoined      = "DuelJoined"
	EventDuelCompleted   = "DuelCompleted"
	EventDuelNullified   = "DuelNullified"
	EventProceedsClaimed = "ProceedsClaimed"
)

// Event names of the escrow contract
const (
	EventFundsEscrowed = "FundsEscrowed"
	EventFundsReleased = "FundsReleased"
	EventFeeCollected  = "FeeCollected"
)

// BattleEvents lists every battle event, in lifecycle order
var BattleEvents = []string{
	EventDuelInitiated,
	EventDuelJoined,
	EventDuelCompleted,
	EventDuelNullified,
	EventProceedsClaimed,
}

// EscrowEvents lists every escrow event
var EscrowEvents = []string{
	EventFundsEscrowed,
	EventFundsReleased,
	EventFeeCollected,
}

// BattleABI is the read-only surface of the duel contract
const BattleABI = `[
  {"type":"event","name":"DuelInitiated","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"player1","type":"address","indexed":true},
    {"name":"player2","type":"address","indexed":true},
    {"name":"wager","type":"uint256","indexed":false}]},
  {"type":"event","name":"DuelJoined","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"player2","type":"address","indexed":true}]},
  {"type":"event","name":"DuelCompleted","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"winner","type":"address","indexed":true},
    {"name":"loser","type":"address","indexed":true},
    {"name":"totalWinnings","type":"uint256","indexed":false},
    {"name":"fee","type":"uint256","indexed":false}]},
  {"type":"event","name":"DuelNullified","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"player","type":"address","indexed":true},
    {"name":"refundAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"ProceedsClaimed","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"winner","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"fee","type":"uint256","indexed":false}]},
  {"type":"function","name":"getPlayerStats","stateMutability":"view","inputs":[
    {"name":"player","type":"address"}],"outputs":[
    {"name":"totalDuels","type":"uint256"},
    {"name":"wins","type":"uint256"},
    {"name":"totalWagered","type":"uint256"},
    {"name":"totalProfit","type":"uint256"}]}
]`

// EscrowABI is the read-only surface of the escrow contract
const EscrowABI = `[
  {"type":"event","name":"FundsEscrowed","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"FundsReleased","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"winner","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"fee","type":"uint256","indexed":false}]},
  {"type":"event","name":"FeeCollected","anonymous":false,"inputs":[
    {"name":"duelId","type":"uint256","indexed":true},
    {"name":"feeAmount","type":"uint256","indexed":false}]},
  {"type":"function","name":"getTotalFees","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"uint256"}]}
]`
