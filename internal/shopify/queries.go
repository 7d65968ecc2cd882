package shopify

const contractFields = `
	id
	status
	nextBillingDate
	billingPolicy {
		interval
		intervalCount
	}
	customer {
		id
		email
		firstName
	}
	customerPaymentMethod {
		id
	}
`

const userErrorFields = `
	userErrors {
		code
		field
		message
	}
`

var (
	queryContract = `query subscriptionContract($id: ID!) {
	subscriptionContract(id: $id) {` + contractFields + `}
}`

	queryContracts = `query subscriptionContracts($first: Int!, $after: String) {
	subscriptionContracts(first: $first, after: $after) {
		edges {
			cursor
			node {` + contractFields + `}
		}
		pageInfo {
			hasNextPage
			endCursor
		}
	}
}`

	queryCustomerPaymentMethod = `query contractCustomer($id: ID!) {
	subscriptionContract(id: $id) {
		customer {
			id
			paymentMethods(first: 1) {
				edges {
					node {
						id
					}
				}
			}
		}
	}
}`

	mutationContractUpdate = `mutation subscriptionContractUpdate($contractId: ID!) {
	subscriptionContractUpdate(contractId: $contractId) {
		draft {
			id
		}` + userErrorFields + `}
}`

	mutationDraftUpdate = `mutation subscriptionDraftUpdate($draftId: ID!, $input: SubscriptionDraftInput!) {
	subscriptionDraftUpdate(draftId: $draftId, input: $input) {
		draft {
			id
		}` + userErrorFields + `}
}`

	mutationDraftCommit = `mutation subscriptionDraftCommit($draftId: ID!) {
	subscriptionDraftCommit(draftId: $draftId) {
		contract {
			id
			status
			customer {
				id
				email
				firstName
			}
		}` + userErrorFields + `}
}`

	mutationBillingAttemptCreate = `mutation subscriptionBillingAttemptCreate($contractId: ID!, $input: SubscriptionBillingAttemptInput!) {
	subscriptionBillingAttemptCreate(subscriptionContractId: $contractId, subscriptionBillingAttemptInput: $input) {
		subscriptionBillingAttempt {
			id
			idempotencyKey
			ready
		}` + userErrorFields + `}
}`
)
