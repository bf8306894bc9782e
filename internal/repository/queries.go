/**
 * Copyright 2018-present Universal Health Coin
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

const (
	// Asset queries
	queryInsertAsset = `
		INSERT INTO assets (id, code, name, issuer, dist_wallet_id, kyc_requirement, locked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetAsset = `
		SELECT id, code, name, issuer, dist_wallet_id, kyc_requirement, locked, created_at
		FROM assets
		WHERE id = ?`

	queryGetAssetByCode = `
		SELECT id, code, name, issuer, dist_wallet_id, kyc_requirement, locked, created_at
		FROM assets
		WHERE code = ?`

	queryListAssets = `
		SELECT id, code, name, issuer, dist_wallet_id, kyc_requirement, locked, created_at
		FROM assets
		ORDER BY created_at`

	queryUpdateAsset = `
		UPDATE assets
		SET issuer = ?, dist_wallet_id = ?, locked = ?
		WHERE id = ?`

	// Offer queries
	queryInsertOffer = `
		INSERT INTO offers (id, asset_id, amount, price_value, price_code, public,
			use_distributor_wallet, wallet_id, ledger_offer_id, start_date, stop_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateOffer = `
		UPDATE offers
		SET amount = ?, wallet_id = ?, ledger_offer_id = ?, start_date = ?, stop_date = ?
		WHERE id = ?`

	queryGetOffer = `
		SELECT id, asset_id, amount, price_value, price_code, public,
		       use_distributor_wallet, wallet_id, ledger_offer_id, start_date, stop_date
		FROM offers
		WHERE id = ?`

	queryGetActiveOffer = `
		SELECT id, asset_id, amount, price_value, price_code, public,
		       use_distributor_wallet, wallet_id, ledger_offer_id, start_date, stop_date
		FROM offers
		WHERE asset_id = ? AND start_date <= ? AND stop_date >= ?
		ORDER BY start_date DESC
		LIMIT 1`

	queryListOffersByAsset = `
		SELECT id, asset_id, amount, price_value, price_code, public,
		       use_distributor_wallet, wallet_id, ledger_offer_id, start_date, stop_date
		FROM offers
		WHERE asset_id = ?
		ORDER BY start_date`

	// Quote queries
	queryInsertQuote = `
		INSERT INTO asset_quotes (id, asset_id, rate_value, rate_code, creation_time, expiry)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetQuote = `
		SELECT id, asset_id, rate_value, rate_code, creation_time, expiry
		FROM asset_quotes
		WHERE id = ?`

	// Wallet queries
	queryInsertWallet = `
		INSERT INTO wallets (id, address, seed, user_id, network_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetWallet = `
		SELECT id, address, seed, user_id, network_id, created_at
		FROM wallets
		WHERE id = ?`

	queryGetWalletByUserId = `
		SELECT id, address, seed, user_id, network_id, created_at
		FROM wallets
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 1`

	// User queries
	queryInsertUser = `
		INSERT INTO users (id, name, email, wallet_id) VALUES (?, ?, ?, ?)`

	queryGetUser = `
		SELECT id, name, email, wallet_id, created_at, updated_at
		FROM users
		WHERE id = ?`

	queryUpdateUserWallet = `
		UPDATE users SET wallet_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	querySetUserClaim = `
		INSERT INTO user_claims (user_id, claim, value) VALUES (?, ?, ?)
		ON CONFLICT (user_id, claim) DO UPDATE SET value = excluded.value`

	queryGetUserClaims = `
		SELECT claim, value FROM user_claims WHERE user_id = ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (id, type, state, batch_id, payor_wallet_id, payee_wallet_id,
			amount_value, amount_code, memo, ref, posting_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateTransaction = `
		UPDATE transactions
		SET state = ?, ref = ?, posting_date = ?
		WHERE id = ?`

	queryGetTransaction = `
		SELECT id, type, state, batch_id, payor_wallet_id, payee_wallet_id,
		       amount_value, amount_code, memo, ref, posting_date, created_at
		FROM transactions
		WHERE id = ?`

	queryGetTransactionsByBatch = `
		SELECT id, type, state, batch_id, payor_wallet_id, payee_wallet_id,
		       amount_value, amount_code, memo, ref, posting_date, created_at
		FROM transactions
		WHERE batch_id = ?
		ORDER BY created_at`

	queryGetTransactionsByState = `
		SELECT id, type, state, batch_id, payor_wallet_id, payee_wallet_id,
		       amount_value, amount_code, memo, ref, posting_date, created_at
		FROM transactions
		WHERE state = ?
		ORDER BY created_at`

	// Purchase queries
	queryInsertPurchase = `
		INSERT INTO purchases (id, quote_id, asset_id, quantity, buyer_id,
			invoiced_value, invoiced_code, distributor_wallet_id, state, ref, memo,
			escrow_term, transaction_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdatePurchase = `
		UPDATE purchases
		SET invoiced_value = ?, invoiced_code = ?, distributor_wallet_id = ?,
		    state = ?, ref = ?, transaction_time = ?
		WHERE id = ?`

	queryGetPurchase = `
		SELECT id, quote_id, asset_id, quantity, buyer_id, invoiced_value, invoiced_code,
		       distributor_wallet_id, state, ref, memo, escrow_term, transaction_time, created_at
		FROM purchases
		WHERE id = ?`
)
