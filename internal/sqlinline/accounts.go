package sqlinline

const QSelectAccount = `--sql 6aca335d-8856-462e-8dfe-f09186873ef0
select id, balance, total_earned, total_spent,
       free_monthly_limit, free_used_this_month, free_reset_at,
       grants, transactions, created_at, updated_at
from accounts
where id = $1;
`

const QUpsertAccount = `--sql 58794df9-001a-4bda-a2f3-6e7777fc41ea
insert into accounts (id, balance, total_earned, total_spent,
                      free_monthly_limit, free_used_this_month, free_reset_at,
                      grants, transactions, created_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
on conflict (id) do update set
    balance = excluded.balance,
    total_earned = excluded.total_earned,
    total_spent = excluded.total_spent,
    free_monthly_limit = excluded.free_monthly_limit,
    free_used_this_month = excluded.free_used_this_month,
    free_reset_at = excluded.free_reset_at,
    grants = excluded.grants,
    transactions = excluded.transactions,
    updated_at = excluded.updated_at;
`
