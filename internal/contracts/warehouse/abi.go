package warehouse

// ABI fragments for the Warehouse13 escrow contract and the minimal
// ERC-20 surface the solver needs (allowance/approve, plus balanceOf).

const warehouseABI = `[
	{
		"type": "function",
		"name": "viewAGI",
		"stateMutability": "view",
		"inputs": [{"name": "orderId", "type": "uint256"}],
		"outputs": [
			{"name": "intentType", "type": "uint8"},
			{"name": "assetToSell", "type": "address"},
			{"name": "amountToSell", "type": "uint256"},
			{"name": "assetToBuy", "type": "address"},
			{"name": "orderId", "type": "uint256"},
			{"name": "orderStatus", "type": "uint8"}
		]
	},
	{
		"type": "function",
		"name": "withdrawAsset",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "orderId", "type": "uint256"}],
		"outputs": []
	},
	{
		"type": "function",
		"name": "depositAsset",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "orderId", "type": "uint256"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "nextOrderId",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "processedAGIsLength",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "getProcessedAGIs",
		"stateMutability": "view",
		"inputs": [
			{"name": "start", "type": "uint256"},
			{"name": "end", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "uint256[]"}]
	},
	{
		"type": "event",
		"name": "AGIPublished",
		"anonymous": false,
		"inputs": [
			{"name": "orderId", "type": "uint256", "indexed": true},
			{"name": "intentType", "type": "uint8", "indexed": false},
			{"name": "assetToSell", "type": "address", "indexed": false},
			{"name": "amountToSell", "type": "uint256", "indexed": false},
			{"name": "assetToBuy", "type": "address", "indexed": false}
		]
	}
]`

const erc20ABI = `[
	{
		"type": "function",
		"name": "allowance",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "approve",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "balanceOf",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	}
]`
